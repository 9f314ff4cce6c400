package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/report"
)

var reportWriters = map[string]func(io.Writer, []domain.Outcome) error{
	"xlsx":     report.WriteXLSX,
	"ids-xlsx": report.WriteIDsXLSX,
	"ids-txt":  report.WriteIDsText,
	"ids-csv":  report.WriteIDsCSV,
}

func newReportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Dispatch report commands",
	}
	cmd.AddCommand(newReportExportCmd(configPath))
	return cmd
}

func newReportExportCmd(configPath *string) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored dispatch report",
		Long:  "Writes every stored outcome as an Excel report, or only the unique user IDs as xlsx, txt or csv.",
		RunE: func(cmd *cobra.Command, args []string) error {
			write, ok := reportWriters[format]
			if !ok {
				return fmt.Errorf("unknown format %q (want xlsx, ids-xlsx, ids-txt or ids-csv)", format)
			}

			_, db, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			rows := report.Rows(cmd.Context(), db, nil, zerolog.Nop())
			if format != "xlsx" && len(report.UniqueIDs(rows)) == 0 {
				return fmt.Errorf("no ids to export")
			}
			if output == "" || output == "-" {
				return write(cmd.OutOrStdout(), rows)
			}
			if err := writeFile(output, func(w io.Writer) error { return write(w, rows) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(rows), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "xlsx, ids-xlsx, ids-txt or ids-csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

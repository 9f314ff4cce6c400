package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"eitaa-automation/internal/contacts"
	"eitaa-automation/internal/report"
	"eitaa-automation/internal/spreadsheet"
)

func newContactsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Contacts sheet commands",
	}
	cmd.AddCommand(newContactsCheckCmd(configPath))
	cmd.AddCommand(newContactsExportCmd(configPath))
	return cmd
}

func newContactsCheckCmd(configPath *string) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a contacts sheet against the database",
		Long:  "Reads an xlsx or csv sheet of name and phone columns and reports how many contacts are new, already added or invalid. Nothing is imported.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := spreadsheet.ReadRows(args[0], f)
			if err != nil {
				return err
			}
			valid, invalid := contacts.ParseRows(spreadsheet.ContactRows(rows))

			_, db, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			fresh, dups, err := db.FilterNewContacts(cmd.Context(), valid)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Total: %d\n", len(valid)+len(invalid))
			fmt.Fprintf(out, "New: %d\n", len(fresh))
			fmt.Fprintf(out, "Duplicates: %d\n", dups)
			fmt.Fprintf(out, "Invalid: %d\n", len(invalid))
			for _, r := range invalid {
				fmt.Fprintf(out, "  row %d: %s (%s)\n", r.Row, r.Raw, r.Reason)
			}
			if verbose {
				for _, c := range fresh {
					fmt.Fprintf(out, "  + %s %s\n", c.Name, contacts.FormatPhone(c.Phone))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list the new contacts")
	return cmd
}

func newContactsExportCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export added contacts as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			stored, err := db.ExportContacts(cmd.Context())
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				return fmt.Errorf("no contacts in the database")
			}
			if output == "" || output == "-" {
				return report.WriteContactsCSV(cmd.OutOrStdout(), stored)
			}
			if err := writeFile(output, func(w io.Writer) error { return report.WriteContactsCSV(w, stored) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d contacts to %s\n", len(stored), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

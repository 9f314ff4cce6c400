package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"eitaa-automation/internal/store"
)

func newDBCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBStatsCmd(configPath))
	cmd.AddCommand(newDBClearCmd(configPath))
	return cmd
}

func newDBStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts for contacts, reports and ready messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			_, db, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := db.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Database: %s\n", st.Path)
			fmt.Fprintf(out, "Contacts: %d (%d unique)\n", st.Contacts.Total, st.Contacts.Unique)
			for _, d := range st.Contacts.LastDays {
				fmt.Fprintf(out, "  %s  %d\n", d.Date, d.Count)
			}
			fmt.Fprintf(out, "Reports: %d\n", st.Reports)
			fmt.Fprintf(out, "Ready messages: %d\n", st.Messages)
			return nil
		},
	}
}

func newDBClearCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear [contacts|reports|messages]",
		Short: "Delete stored rows",
		Long: `Deletes the rows of one table. Without an argument, clears the added
contacts and the dispatch reports but keeps the ready messages.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{store.TableContacts, store.TableReports, store.TableMessages},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			table := "all"
			if len(args) == 1 {
				table = strings.ToLower(args[0])
			}
			switch table {
			case "all", store.TableContacts, store.TableReports, store.TableMessages:
			default:
				return fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
			}

			_, db, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if !yes && !confirm(cmd, fmt.Sprintf("Clear %s in %s?", table, db.Path())) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			if err := db.Clear(cmd.Context(), table); err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared %s\n", table)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

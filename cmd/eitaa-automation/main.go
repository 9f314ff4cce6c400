package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"eitaa-automation/internal/config"
	"eitaa-automation/internal/store"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "eitaa-automation",
		Short:         "Eitaa web bulk messaging and contacts import",
		Long:          "Drives web.eitaa.com through Chrome to message group members and import contacts, behind a local HTTP control panel.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newReportCmd(&configPath))
	cmd.AddCommand(newContactsCmd(&configPath))
	cmd.AddCommand(newDBCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eitaa-automation %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// openStore loads the config and opens its database for the offline
// commands. The caller closes the store.
func openStore(ctx context.Context, configPath string) (*config.Config, *store.SQLite, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.Open(ctx, store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.Storage.Path, err)
	}
	return cfg, db, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

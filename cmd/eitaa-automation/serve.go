package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eitaa-automation/internal/api"
	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/config"
	"eitaa-automation/internal/contacts"
	"eitaa-automation/internal/jobs"
	"eitaa-automation/internal/logging"
	"eitaa-automation/internal/login"
	"eitaa-automation/internal/report"
	"eitaa-automation/internal/session"
	"eitaa-automation/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control panel API and the browser jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func managerOptions(cfg *config.Config) jobs.Options {
	return jobs.Options{
		Login: login.Config{
			URL:               cfg.Eitaa.URL,
			NavigationTimeout: cfg.PageLoadTimeout(),
			CheckTimeout:      cfg.LoginCheckTimeout(),
			LoginTimeout:      cfg.LoginTimeout(),
		},
		Contacts: contacts.Config{
			MinDelay:  cfg.Contacts.MinDelaySeconds,
			MaxDelay:  cfg.Contacts.MaxDelaySeconds,
			Keystroke: time.Duration(cfg.Contacts.KeystrokeDelayMS) * time.Millisecond,
			Settle:    time.Duration(cfg.Contacts.SettleSeconds * float64(time.Second)),
		},
		DefaultMinDelay:   cfg.Dispatch.MinDelaySeconds,
		DefaultMaxDelay:   cfg.Dispatch.MaxDelaySeconds,
		MessagesPerMinute: cfg.Dispatch.MessagesPerMinute,
		ScreenshotDir:     cfg.FailureScreenshotDir(),
		OTPTimeout:        cfg.OTPTimeout(),
	}
}

// runServe blocks until ctx is cancelled, then drains the HTTP server and
// the running jobs.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		OutputFile: cfg.Logging.OutputFile,
		RingSize:   cfg.Logging.RingSize,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Logger

	repo, err := store.Open(ctx, store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond,
	}, log)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Storage.Path, err)
	}
	defer repo.Close()

	chrome := browser.NewSession(browser.Options{
		Headless:             cfg.Browser.Headless,
		UserDataDir:          cfg.Browser.UserDataDir,
		ChromePath:           cfg.Browser.ChromePath,
		Width:                cfg.Browser.WindowWidth,
		Height:               cfg.Browser.WindowHeight,
		ShowAutomationMarker: cfg.Browser.ShowAutomationMarker,
	}, log)

	mgr := jobs.New(managerOptions(cfg), session.New(logger.Ring), chrome, repo,
		report.NewFailedLog(cfg.Dispatch.FailedDMsPath), log)

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     api.NewHandler(mgr, repo, log).Router(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		// Exports and long polls have no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("database", cfg.Storage.Path).Msg("Control panel listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = mgr.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Jobs did not stop in time")
	}
	log.Info().Msg("Stopped")
	return nil
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

type Options struct {
	Headless    bool
	UserDataDir string
	ChromePath  string
	Width       int
	Height      int
	// ShowAutomationMarker keeps Chrome's "controlled by automated software"
	// flags. Eitaa web treats such sessions with suspicion.
	ShowAutomationMarker bool
}

// Session is the process-wide browser: one allocator, one browser, one tab.
// It is started lazily by Acquire and shared by every job.
type Session struct {
	opts Options
	log  zerolog.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	page          *cdpPage

	authenticated atomic.Bool
}

var _ Provider = (*Session)(nil)

func NewSession(opts Options, log zerolog.Logger) *Session {
	return &Session{opts: opts, log: log.With().Str("component", "browser").Logger()}
}

// Acquire returns the shared page, launching Chrome if it is not running or
// if the previous instance was closed or crashed.
func (s *Session) Acquire(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil && s.page.ctx.Err() == nil {
		return s.page, nil
	}
	if s.page != nil {
		s.log.Warn().Msg("Browser context is gone, starting a new browser")
		s.closeLocked()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.opts.ChromePath != "" {
		if _, err := os.Stat(s.opts.ChromePath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("chrome executable not found at: %s", s.opts.ChromePath)
			}
			return nil, fmt.Errorf("cannot access chrome executable at %s: %w", s.opts.ChromePath, err)
		}
		s.log.Info().Str("path", s.opts.ChromePath).Msg("Using Chrome")
	}
	if err := ensureUserDataDir(s.opts.UserDataDir, s.log); err != nil {
		return nil, fmt.Errorf("failed to create user data directory: %w", err)
	}

	s.log.Info().Bool("headless", s.opts.Headless).Msg("Starting browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process and opens the tab.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	s.page = &cdpPage{ctx: browserCtx}
	s.authenticated.Store(false)
	return s.page, nil
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	width, height := s.opts.Width, s.opts.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 860
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-extensions", false),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.WindowSize(width, height),
	)
	if !s.opts.ShowAutomationMarker {
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("excludeSwitches", "enable-automation"),
		)
	}
	if s.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.opts.UserDataDir))
	}
	if s.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ChromePath))
	}
	return opts
}

func (s *Session) Authenticated() bool { return s.authenticated.Load() }

func (s *Session) SetAuthenticated(v bool) { s.authenticated.Store(v) }

// Close tears down tab, browser and allocator in that order. It is safe to
// call on a session that never started or that is already half closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	if s.page != nil {
		if s.page.ctx.Err() == nil {
			if err := chromedp.Cancel(s.page.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Debug().Err(err).Msg("Browser did not close cleanly")
			}
		}
		s.page = nil
	}
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.authenticated.Store(false)
}

// ensureUserDataDir creates the user data directory if it doesn't exist
// and checks that Chrome will be able to write into it.
func ensureUserDataDir(dirPath string, log zerolog.Logger) error {
	if dirPath == "" {
		log.Info().Msg("No user data directory specified, Chrome will use a temporary profile")
		return nil
	}

	info, err := os.Stat(dirPath)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("dir", dirPath).Msg("Creating user data directory")
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
		}
	case err != nil:
		return fmt.Errorf("failed to check directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", dirPath)
	}

	testFile := filepath.Join(dirPath, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory exists but is not writable: %s", dirPath)
	}
	_ = os.Remove(testFile)
	return nil
}

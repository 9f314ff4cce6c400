// Package discovery opens a group chat and finds the most recent message
// that starts with a given prefix.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/pace"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("no message with the prefix")
	ErrNoUsernames     = errors.New("message mentions no usernames")
)

type Config struct {
	// Settle is the pause after each scroll to the top of the history.
	Settle time.Duration
	// ScrollPasses is how many times the pane is scrolled to the top.
	ScrollPasses int
}

type Finder struct {
	cfg   Config
	log   zerolog.Logger
	Sleep pace.SleepFunc
}

func NewFinder(cfg Config, log zerolog.Logger) *Finder {
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	if cfg.ScrollPasses <= 0 {
		cfg.ScrollPasses = 2
	}
	return &Finder{cfg: cfg, log: log, Sleep: pace.Sleep}
}

// OpenGroup searches the chat list for a group titled exactly group and opens it.
func (f *Finder) OpenGroup(ctx context.Context, page browser.Page, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return fmt.Errorf("%w: empty group name", ErrGroupNotFound)
	}
	f.log.Info().Str("group", group).Msg("Searching for group")

	if err := page.WaitVisible(ctx, eitaa.SearchInput, 20*time.Second); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.Click(ctx, eitaa.SearchInput, 10*time.Second); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.Fill(ctx, eitaa.SearchInput, "", 3*time.Second); err != nil {
		return fmt.Errorf("clear search box: %w", err)
	}
	if err := f.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := page.Fill(ctx, eitaa.SearchInput, group, 10*time.Second); err != nil {
		return fmt.Errorf("type group name: %w", err)
	}

	entry := eitaa.GroupEntry(group)
	if err := page.WaitAttached(ctx, entry, 15*time.Second); err != nil {
		return f.stageErr(ctx, ErrGroupNotFound, group, err)
	}
	if err := page.WaitVisible(ctx, entry, 20*time.Second); err != nil {
		return f.stageErr(ctx, ErrGroupNotFound, group, err)
	}
	if err := page.Click(ctx, entry, 10*time.Second); err != nil {
		return f.stageErr(ctx, ErrGroupNotFound, group, err)
	}
	if err := page.WaitVisible(ctx, eitaa.BubbleContent, 15*time.Second); err != nil {
		return f.stageErr(ctx, ErrGroupNotFound, group, err)
	}

	f.log.Info().Str("group", group).Msg("Group opened")
	return nil
}

func (f *Finder) stageErr(ctx context.Context, sentinel error, subject string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %q: %w", sentinel, subject, err)
}

// FindTargetMessage opens group and returns the trimmed text of the newest
// message whose normalized text starts with the normalized prefix.
func (f *Finder) FindTargetMessage(ctx context.Context, page browser.Page, group, prefix string) (string, error) {
	want := Normalize(strings.TrimSpace(prefix))
	if want == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrMessageNotFound)
	}
	if err := f.OpenGroup(ctx, page, group); err != nil {
		return "", err
	}

	f.loadHistory(ctx, page)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	count, err := page.Count(ctx, eitaa.Bubbles())
	if err != nil {
		return "", fmt.Errorf("count message bubbles: %w", err)
	}
	f.log.Info().Int("bubbles", count).Str("prefix", prefix).Msg("Scanning messages from newest")

	for _, text := range f.newestFirst(ctx, page, count) {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" && strings.HasPrefix(Normalize(trimmed), want) {
			f.log.Info().Str("message", preview(trimmed)).Msg("Target message found")
			return trimmed, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w %q in group %q", ErrMessageNotFound, prefix, group)
}

// loadHistory scrolls the message pane to the top so lazily loaded older
// messages are rendered. Failures only mean less history.
func (f *Finder) loadHistory(ctx context.Context, page browser.Page) {
	n, err := page.Count(ctx, eitaa.ScrollPane)
	if err != nil || n == 0 {
		return
	}
	for i := 0; i < f.cfg.ScrollPasses; i++ {
		if err := page.ScrollTop(ctx, eitaa.ScrollPane); err != nil {
			f.log.Debug().Err(err).Msg("Scroll to top failed")
		}
		if f.Sleep(ctx, f.cfg.Settle) != nil {
			return
		}
	}
}

// newestFirst lazily yields (index, text) for bubbles count-1 down to 0.
// Bubbles whose text cannot be read are skipped.
func (f *Finder) newestFirst(ctx context.Context, page browser.Page, count int) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i := count - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				return
			}
			text, err := page.Text(ctx, eitaa.BubbleText(i), 0, 3*time.Second)
			if err != nil {
				f.log.Trace().Err(err).Int("bubble", i).Msg("Bubble skipped")
				continue
			}
			if !yield(i, text) {
				return
			}
		}
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}

// Package browser owns the single Chrome session shared by every job and
// exposes it through the narrow Page capability used by the orchestrators.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrElementTimeout    = errors.New("timed out waiting for element")
	ErrElementNotFound   = errors.New("element not found")
	ErrClosed            = errors.New("browser session closed")
)

// Key names understood by Page.Press.
const (
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
	KeyBackspace = "Backspace"
)

// Page is the DOM capability the automation layers are written against.
// Selectors are XPath expressions or CSS selectors; implementations decide
// which by inspecting the selector text. Every method that waits takes its
// own timeout; a timeout is reported as ErrElementTimeout (or
// ErrNavigationTimeout for Navigate) wrapped with the selector.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitAttached waits for the first match to exist in the DOM.
	WaitAttached(ctx context.Context, sel string, timeout time.Duration) error
	// WaitVisible waits for the first match to be laid out and visible.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	// IsVisible checks without waiting beyond the given timeout and never errors.
	IsVisible(ctx context.Context, sel string, timeout time.Duration) bool
	Count(ctx context.Context, sel string) (int, error)
	// Text returns the inner text of the index-th (0-based) match.
	Text(ctx context.Context, sel string, index int, timeout time.Duration) (string, error)

	Click(ctx context.Context, sel string, timeout time.Duration) error
	// Fill replaces the content of an input or contenteditable element.
	Fill(ctx context.Context, sel, text string, timeout time.Duration) error
	// TypeSlow focuses sel and types text one key at a time with a fixed pause.
	TypeSlow(ctx context.Context, sel, text string, perKey time.Duration) error
	// TypeKeys types into whatever element currently has focus.
	TypeKeys(ctx context.Context, text string) error
	// Press sends a single named key to the focused element.
	Press(ctx context.Context, key string) error
	// ScrollTop scrolls the first match to scrollTop = 0.
	ScrollTop(ctx context.Context, sel string) error

	// Screenshot writes a PNG of the viewport to path.
	Screenshot(ctx context.Context, path string) error
}

// Provider hands out the shared Page, starting the browser on first use.
type Provider interface {
	Acquire(ctx context.Context) (Page, error)
	Authenticated() bool
	SetAuthenticated(bool)
	Close() error
}

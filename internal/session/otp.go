package session

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNoPendingOTP        = errors.New("no login is waiting for a code")
	ErrOTPAlreadySubmitted = errors.New("a code was already submitted for this login")
	ErrEmptyOTP            = errors.New("code is empty")
)

// Challenge carries one OTP code from the operator to the waiting login.
// One login goroutine calls Begin and Await; any request handler may Submit.
type Challenge struct {
	mu        sync.Mutex
	pending   bool
	submitted bool
	ch        chan string
}

// Begin opens a new challenge, discarding any previous one.
func (c *Challenge) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = true
	c.submitted = false
	c.ch = make(chan string, 1)
}

// Pending reports whether a login is waiting for a code.
func (c *Challenge) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending && !c.submitted
}

// Submit delivers code to the waiting login. Only the first code of a
// challenge is accepted.
func (c *Challenge) Submit(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyOTP
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return ErrNoPendingOTP
	}
	if c.submitted {
		return ErrOTPAlreadySubmitted
	}
	c.submitted = true
	c.ch <- code
	return nil
}

// Await blocks until a code is submitted or ctx is done. There is no timeout
// of its own. The challenge is cleared either way.
func (c *Challenge) Await(ctx context.Context) (string, error) {
	c.mu.Lock()
	ch := c.ch
	pending := c.pending
	c.mu.Unlock()
	if !pending || ch == nil {
		return "", ErrNoPendingOTP
	}
	defer c.Clear()

	select {
	case code := <-ch:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Clear abandons any open challenge.
func (c *Challenge) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	c.submitted = false
	c.ch = nil
}

package browsertest

import (
	"context"
	"sync"
	"sync/atomic"

	"eitaa-automation/internal/browser"
)

// Provider hands out a fixed Page and counts lifecycle calls.
type Provider struct {
	Page       *Page
	AcquireErr error

	mu       sync.Mutex
	acquired int
	closed   int
	auth     atomic.Bool
}

var _ browser.Provider = (*Provider)(nil)

func NewProvider(p *Page) *Provider {
	return &Provider{Page: p}
}

func (p *Provider) Acquire(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	p.acquired++
	return p.Page, nil
}

func (p *Provider) Authenticated() bool { return p.auth.Load() }

func (p *Provider) SetAuthenticated(v bool) { p.auth.Store(v) }

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.auth.Store(false)
	return nil
}

func (p *Provider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

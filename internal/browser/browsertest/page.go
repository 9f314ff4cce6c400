// Package browsertest provides a scripted in-memory browser.Page for tests
// of the automation layers.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eitaa-automation/internal/browser"
)

const (
	OpNavigate     = "navigate"
	OpWaitAttached = "wait_attached"
	OpWaitVisible  = "wait_visible"
	OpIsVisible    = "is_visible"
	OpCount        = "count"
	OpText         = "text"
	OpClick        = "click"
	OpFill         = "fill"
	OpTypeSlow     = "type_slow"
	OpTypeKeys     = "type_keys"
	OpPress        = "press"
	OpScrollTop    = "scroll_top"
	OpScreenshot   = "screenshot"
)

type Call struct {
	Op  string
	Sel string
	Arg string
}

// Page records every call. Behaviour is scripted through the hook fields,
// all of which are optional; a zero Page finds every element and succeeds.
type Page struct {
	// Present reports whether sel exists and is visible. nil means always.
	Present func(sel string) bool
	// Fail returns an error to make op on sel fail. nil means never.
	Fail func(op, sel string) error
	// Counts answers Count; missing selectors count as zero.
	Counts map[string]int
	// TextOf answers Text. nil means ErrElementNotFound.
	TextOf func(sel string, index int) (string, error)
	// AfterCall runs after each call is recorded, outside the lock.
	AfterCall func(c Call)

	mu    sync.Mutex
	calls []Call
}

var _ browser.Page = (*Page)(nil)

func (p *Page) record(op, sel, arg string) error {
	c := Call{Op: op, Sel: sel, Arg: arg}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	fail := p.Fail
	p.mu.Unlock()

	if p.AfterCall != nil {
		p.AfterCall(c)
	}
	if fail != nil {
		return fail(op, sel)
	}
	return nil
}

func (p *Page) present(sel string) bool {
	return p.Present == nil || p.Present(sel)
}

func (p *Page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(OpNavigate, "", url)
}

func (p *Page) WaitAttached(ctx context.Context, sel string, _ time.Duration) error {
	return p.wait(ctx, OpWaitAttached, sel)
}

func (p *Page) WaitVisible(ctx context.Context, sel string, _ time.Duration) error {
	return p.wait(ctx, OpWaitVisible, sel)
}

func (p *Page) wait(ctx context.Context, op, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record(op, sel, ""); err != nil {
		return err
	}
	if !p.present(sel) {
		return fmt.Errorf("%w: %s", browser.ErrElementTimeout, sel)
	}
	return nil
}

func (p *Page) IsVisible(ctx context.Context, sel string, _ time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if err := p.record(OpIsVisible, sel, ""); err != nil {
		return false
	}
	return p.present(sel)
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := p.record(OpCount, sel, ""); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Counts[sel], nil
}

func (p *Page) Text(ctx context.Context, sel string, index int, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.record(OpText, sel, fmt.Sprint(index)); err != nil {
		return "", err
	}
	if p.TextOf == nil {
		return "", fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
	}
	return p.TextOf(sel, index)
}

func (p *Page) Click(ctx context.Context, sel string, _ time.Duration) error {
	return p.act(ctx, OpClick, sel, "")
}

func (p *Page) Fill(ctx context.Context, sel, text string, _ time.Duration) error {
	return p.act(ctx, OpFill, sel, text)
}

func (p *Page) TypeSlow(ctx context.Context, sel, text string, _ time.Duration) error {
	return p.act(ctx, OpTypeSlow, sel, text)
}

func (p *Page) TypeKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(OpTypeKeys, "", text)
}

func (p *Page) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(OpPress, "", key)
}

func (p *Page) ScrollTop(ctx context.Context, sel string) error {
	return p.act(ctx, OpScrollTop, sel, "")
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record(OpScreenshot, "", path)
}

// act is an element interaction: it fails like a wait when sel is absent.
func (p *Page) act(ctx context.Context, op, sel, arg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.record(op, sel, arg); err != nil {
		return err
	}
	if !p.present(sel) {
		return fmt.Errorf("%w: %s", browser.ErrElementTimeout, sel)
	}
	return nil
}

// Calls returns a copy of every recorded call in order.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (p *Page) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Args returns the Arg of every call with the given op on sel.
func (p *Page) Args(op, sel string) []string {
	var out []string
	for _, c := range p.CallsOf(op) {
		if c.Sel == sel {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Pressed lists the keys sent with Press, in order.
func (p *Page) Pressed() []string {
	var out []string
	for _, c := range p.CallsOf(OpPress) {
		out = append(out, c.Arg)
	}
	return out
}

func (p *Page) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// cdpPage implements Page on top of a chromedp tab context. XPath selectors
// (leading "/" or "(") are resolved with chromedp.BySearch, CSS selectors with
// chromedp.ByQuery so that actions target the first match only.
type cdpPage struct {
	ctx context.Context
}

// scope derives a chromedp context from the tab that also ends when the
// caller's ctx ends or the timeout elapses.
func (p *cdpPage) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		c      context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		c, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		c, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// classify turns a chromedp error into the package taxonomy, preferring the
// caller's own cancellation over a timeout.
func classify(ctx context.Context, err error, timeoutErr error, sel string) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", timeoutErr, sel)
	}
	if errors.Is(err, context.Canceled) {
		return ErrClosed
	}
	return fmt.Errorf("%s: %w", sel, err)
}

func (p *cdpPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	err := chromedp.Run(c,
		chromedp.Evaluate(`window.onbeforeunload = null;`, nil),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return classify(ctx, err, ErrNavigationTimeout, url)
}

func (p *cdpPage) WaitAttached(ctx context.Context, sel string, timeout time.Duration) error {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	return classify(ctx, chromedp.Run(c, chromedp.WaitReady(sel, by(sel))), ErrElementTimeout, sel)
}

func (p *cdpPage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	return classify(ctx, chromedp.Run(c, chromedp.WaitVisible(sel, by(sel))), ErrElementTimeout, sel)
}

func (p *cdpPage) IsVisible(ctx context.Context, sel string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return p.WaitVisible(ctx, sel, timeout) == nil
}

func (p *cdpPage) Count(ctx context.Context, sel string) (int, error) {
	c, cancel := p.scope(ctx, 5*time.Second)
	defer cancel()
	var nodes []*cdp.Node
	err := chromedp.Run(c, chromedp.Nodes(sel, &nodes, byAll(sel), chromedp.AtLeast(0)))
	if err != nil {
		return 0, classify(ctx, err, ErrElementTimeout, sel)
	}
	return len(nodes), nil
}

func (p *cdpPage) Text(ctx context.Context, sel string, index int, timeout time.Duration) (string, error) {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	var out struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	js := fmt.Sprintf(`(function(){ const n = (%s)[%d]; return n ? {found: true, text: n.innerText || ""} : {found: false, text: ""}; })()`,
		resolveJS(sel), index)
	if err := chromedp.Run(c, chromedp.Evaluate(js, &out)); err != nil {
		return "", classify(ctx, err, ErrElementTimeout, sel)
	}
	if !out.Found {
		return "", fmt.Errorf("%w: %s[%d]", ErrElementNotFound, sel, index)
	}
	return out.Text, nil
}

func (p *cdpPage) Click(ctx context.Context, sel string, timeout time.Duration) error {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	return classify(ctx, chromedp.Run(c, chromedp.Click(sel, by(sel))), ErrElementTimeout, sel)
}

const fillJS = `(function(text){
	const el = document.activeElement;
	if (el && (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA')) {
		el.select();
	} else {
		document.execCommand('selectAll', false, null);
	}
	if (text === '') {
		document.execCommand('delete', false, null);
	} else {
		document.execCommand('insertText', false, text);
	}
	return true;
})(%s)`

func (p *cdpPage) Fill(ctx context.Context, sel, text string, timeout time.Duration) error {
	c, cancel := p.scope(ctx, timeout)
	defer cancel()
	text = normalizeNewlines(text)
	err := chromedp.Run(c,
		chromedp.Focus(sel, by(sel)),
		chromedp.Evaluate(fmt.Sprintf(fillJS, jsString(text)), nil),
	)
	return classify(ctx, err, ErrElementTimeout, sel)
}

func (p *cdpPage) TypeSlow(ctx context.Context, sel, text string, perKey time.Duration) error {
	c, cancel := p.scope(ctx, 0)
	defer cancel()
	actions := []chromedp.Action{chromedp.Focus(sel, by(sel))}
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
		if perKey > 0 {
			actions = append(actions, chromedp.Sleep(perKey))
		}
	}
	return classify(ctx, chromedp.Run(c, actions...), ErrElementTimeout, sel)
}

func (p *cdpPage) TypeKeys(ctx context.Context, text string) error {
	c, cancel := p.scope(ctx, 0)
	defer cancel()
	return classify(ctx, chromedp.Run(c, chromedp.KeyEvent(text)), ErrElementTimeout, "keyboard")
}

func (p *cdpPage) Press(ctx context.Context, key string) error {
	var k string
	switch key {
	case KeyEnter:
		k = kb.Enter
	case KeyEscape:
		k = kb.Escape
	case KeyBackspace:
		k = kb.Backspace
	default:
		k = key
	}
	c, cancel := p.scope(ctx, 5*time.Second)
	defer cancel()
	return classify(ctx, chromedp.Run(c, chromedp.KeyEvent(k)), ErrElementTimeout, "key "+key)
}

func (p *cdpPage) ScrollTop(ctx context.Context, sel string) error {
	c, cancel := p.scope(ctx, 5*time.Second)
	defer cancel()
	var ok bool
	js := fmt.Sprintf(`(function(){ const n = (%s)[0]; if (!n) return false; n.scrollTop = 0; return true; })()`, resolveJS(sel))
	if err := chromedp.Run(c, chromedp.Evaluate(js, &ok)); err != nil {
		return classify(ctx, err, ErrElementTimeout, sel)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return nil
}

func (p *cdpPage) Screenshot(ctx context.Context, path string) error {
	c, cancel := p.scope(ctx, 10*time.Second)
	defer cancel()
	var buf []byte
	err := chromedp.Run(c, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return classify(ctx, err, ErrElementTimeout, "screenshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}

func by(sel string) chromedp.QueryOption {
	if isXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func byAll(sel string) chromedp.QueryOption {
	if isXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// resolveJS returns a JS expression evaluating to an array of the nodes
// matching sel, treating selectors that start with "/" or "(" as XPath.
func resolveJS(sel string) string {
	if isXPath(sel) {
		return fmt.Sprintf(`(function(){ const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null); const a = []; for (let i = 0; i < r.snapshotLength; i++) a.push(r.snapshotItem(i)); return a; })()`, jsString(sel))
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, jsString(sel))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

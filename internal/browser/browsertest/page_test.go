package browsertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eitaa-automation/internal/browser"
)

func TestZeroPageSucceeds(t *testing.T) {
	p := &Page{}
	ctx := context.Background()

	require.NoError(t, p.WaitVisible(ctx, "#x", 0))
	require.NoError(t, p.Fill(ctx, "#x", "hello", 0))
	require.NoError(t, p.Press(ctx, browser.KeyEnter))

	assert.Equal(t, []string{"hello"}, p.Args(OpFill, "#x"))
	assert.Equal(t, []string{browser.KeyEnter}, p.Pressed())
	assert.Len(t, p.Calls(), 3)
}

func TestAbsentElementTimesOut(t *testing.T) {
	p := &Page{Present: func(sel string) bool { return sel != "#missing" }}
	err := p.WaitAttached(context.Background(), "#missing", 0)
	assert.ErrorIs(t, err, browser.ErrElementTimeout)
	assert.False(t, p.IsVisible(context.Background(), "#missing", 0))
	assert.True(t, p.IsVisible(context.Background(), "#here", 0))
}

func TestFailHook(t *testing.T) {
	boom := errors.New("boom")
	p := &Page{Fail: func(op, sel string) error {
		if op == OpClick {
			return boom
		}
		return nil
	}}
	assert.ErrorIs(t, p.Click(context.Background(), "#b", 0), boom)
	assert.NoError(t, p.Fill(context.Background(), "#b", "", 0))
}

func TestCancelledContext(t *testing.T) {
	p := &Page{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Click(ctx, "#b", 0), context.Canceled)
	assert.Empty(t, p.Calls())
}

func TestProviderCounts(t *testing.T) {
	prov := NewProvider(&Page{})
	_, err := prov.Acquire(context.Background())
	require.NoError(t, err)
	prov.SetAuthenticated(true)
	require.NoError(t, prov.Close())

	assert.Equal(t, 1, prov.Acquired())
	assert.Equal(t, 1, prov.Closed())
	assert.False(t, prov.Authenticated())
}

package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseNeverStarted(t *testing.T) {
	s := NewSession(Options{}, zerolog.Nop())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.Authenticated())
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	s := NewSession(Options{UserDataDir: t.TempDir()}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquireRejectsMissingChrome(t *testing.T) {
	s := NewSession(Options{ChromePath: filepath.Join(t.TempDir(), "no-chrome")}, zerolog.Nop())
	_, err := s.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnsureUserDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	require.NoError(t, ensureUserDataDir(dir, zerolog.Nop()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dir, ".write_test"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureUserDataDirRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Error(t, ensureUserDataDir(file, zerolog.Nop()))
}

func TestResolveJS(t *testing.T) {
	assert.True(t, strings.HasPrefix(resolveJS("div.bubble"), "Array.from(document.querySelectorAll("))
	assert.Contains(t, resolveJS("//div[@id='x']"), "document.evaluate(")
	assert.Contains(t, resolveJS("(//div)[2]"), "document.evaluate(")
}

func TestJSStringEscapes(t *testing.T) {
	assert.Equal(t, `"a\"b\nc"`, jsString("a\"b\nc"))
}

func TestNormalizeNewlines(t *testing.T) {
	assert.Equal(t, "a\nb\nc", normalizeNewlines("a\r\nb\rc"))
}

func TestAllocatorOptionsAutomationMarker(t *testing.T) {
	hidden := NewSession(Options{}, zerolog.Nop()).allocatorOptions()
	shown := NewSession(Options{ShowAutomationMarker: true}, zerolog.Nop()).allocatorOptions()
	assert.Len(t, hidden, len(shown)+3)
}

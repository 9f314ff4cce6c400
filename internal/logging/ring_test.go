package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingNewestFirst(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		_, err := fmt.Fprintf(r, "line %d\n", i)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"line 5", "line 4", "line 3"}, r.Tail(0))
	assert.Equal(t, []string{"line 5"}, r.Tail(1))
}

func TestRingSplitsMultilineWrites(t *testing.T) {
	r := NewRing(10)
	_, _ = r.Write([]byte("a\nb\n"))
	assert.Equal(t, []string{"b", "a"}, r.Tail(0))
}

func TestRingBehindConsoleWriter(t *testing.T) {
	r := NewRing(10)
	zl := zerolog.New(zerolog.ConsoleWriter{Out: r, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}})
	zl.Info().Str("user", "@alice").Msg("message sent")

	tail := r.Tail(1)
	require.Len(t, tail, 1)
	assert.True(t, strings.Contains(tail[0], "message sent"))
	assert.True(t, strings.Contains(tail[0], "user=@alice"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

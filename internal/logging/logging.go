// Package logging builds the process logger: zerolog console output, an
// optional log file, and a Ring holding the most recent lines for status polls.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02 15:04:05"

type Config struct {
	Level      string
	OutputFile string
	RingSize   int
}

// Logger owns the sinks behind the root zerolog.Logger.
type Logger struct {
	zerolog.Logger
	Ring *Ring
	file *os.File
}

func New(cfg Config) (*Logger, error) {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"

	ring := NewRing(cfg.RingSize)
	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat},
		zerolog.ConsoleWriter{Out: ring, TimeFormat: "15:04:05", NoColor: true, PartsExclude: []string{zerolog.LevelFieldName}},
	}

	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()

	return &Logger{Logger: zl, Ring: ring, file: file}, nil
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Nop returns a logger that discards everything but still has a usable Ring.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), Ring: NewRing(0)}
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

package logging

import (
	"strings"
	"sync"
)

const defaultRingSize = 300

// Ring keeps the last N log lines. It is an io.Writer so it can sit behind a
// zerolog.ConsoleWriter; each Write may carry one or more newline-terminated lines.
type Ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{lines: make([]string, size)}
}

func (r *Ring) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	if text == "" {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		r.lines[r.next] = line
		r.next = (r.next + 1) % len(r.lines)
		if r.next == 0 {
			r.full = true
		}
	}
	return len(p), nil
}

// Tail returns up to n lines, newest first. n <= 0 returns everything held.
func (r *Ring) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]string, 0, n)
	idx := r.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(r.lines)) % len(r.lines)
		out = append(out, r.lines[idx])
	}
	return out
}

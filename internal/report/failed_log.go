package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eitaa-automation/internal/domain"
)

// FailedLog appends one line per failed DM to a plain-text file:
//
//	2006-01-02 15:04:05 - @handle - Reason: element not found
type FailedLog struct {
	mu   sync.Mutex
	path string
}

func NewFailedLog(path string) *FailedLog {
	return &FailedLog{path: path}
}

func (l *FailedLog) Path() string {
	return l.path
}

// Append writes a line for handle. The file and its directory are created on
// first use.
func (l *FailedLog) Append(at time.Time, handle, reason string) error {
	if l == nil || l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create failed-DM log directory: %w", err)
		}
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failed-DM log: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("%s - %s - Reason: %s\n", at.Format(timeLayout), domain.AsHandle(handle), reason)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write failed-DM log: %w", err)
	}
	return nil
}

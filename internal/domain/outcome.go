// Package domain holds the records shared by the jobs, the store and the
// report exporters.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Label is the status as shown to the operator in exported reports.
func (s Status) Label() string {
	switch s {
	case StatusSuccess:
		return "موفق"
	case StatusFailed:
		return "ناموفق"
	case StatusSkipped:
		return "رد شده"
	default:
		return "ناشناخته"
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

type OperationType string

const (
	OpGroupPrefix OperationType = "group_prefix"
	OpSpreadsheet OperationType = "spreadsheet"
)

const (
	MaxDetailRunes  = 100
	MaxContentRunes = 500
	MaxNameRunes    = 50
)

// SelfSkipReason is recorded for the operator's own handle.
const SelfSkipReason = "operator's own handle"

// Outcome is the result of processing one recipient of a dispatch job.
type Outcome struct {
	RecipientID   string        `json:"id"`
	Status        Status        `json:"status"`
	Detail        string        `json:"error"`
	OperationType OperationType `json:"operation_type"`
	Content       string        `json:"message_content,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	PhoneContext  string        `json:"phone_number,omitempty"`
	JobID         string        `json:"job_id,omitempty"`
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// NormalizeHandle returns h in the form used for comparisons: lowercase with
// surrounding space and any leading "@" removed.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(h), "@"))
}

// SameHandle compares two handles case-insensitively, ignoring "@".
func SameHandle(a, b string) bool {
	na := NormalizeHandle(a)
	return na != "" && na == NormalizeHandle(b)
}

// AsHandle trims h and prepends "@" when missing. Blank input stays blank.
func AsHandle(h string) string {
	h = strings.TrimSpace(h)
	if h == "" || strings.HasPrefix(h, "@") {
		return h
	}
	return "@" + h
}

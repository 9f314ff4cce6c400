// Package store is the durable log: contacts already added (the dedup
// source) and every dispatch outcome (the report source), plus the saved
// ready messages.
package store

import (
	"context"
	"errors"
	"time"

	"eitaa-automation/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownTable = errors.New("unknown table")
)

// Table names accepted by Clear. The empty table clears contacts and reports.
const (
	TableContacts = "contacts"
	TableReports  = "reports"
	TableMessages = "messages"
)

// ReportFilter narrows Reports. Date is a local calendar day "2006-01-02".
type ReportFilter struct {
	Status domain.Status
	Date   string
	Limit  int
	Offset int
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ContactStats struct {
	Total    int        `json:"total"`
	Unique   int        `json:"unique"`
	LastDays []DayCount `json:"last_7_days"`
}

type Stats struct {
	Contacts ContactStats `json:"contacts"`
	Reports  int          `json:"reports_count"`
	Messages int          `json:"ready_messages_count"`
	Path     string       `json:"database_file"`
}

// Repository is the persistence surface used by the jobs and the API.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	ContactExists(ctx context.Context, phone string) (bool, error)
	// AddContact inserts c unless its phone is already recorded and reports
	// whether a row was written.
	AddContact(ctx context.Context, c domain.Contact, addedBy string) (bool, error)
	// FilterNewContacts splits contacts into those never recorded and a count
	// of duplicates, including repeats within the batch itself.
	FilterNewContacts(ctx context.Context, contacts []domain.Contact) ([]domain.Contact, int, error)
	ExportContacts(ctx context.Context) ([]domain.StoredContact, error)

	SaveOutcome(ctx context.Context, o domain.Outcome) error
	// Reports returns one page of outcomes, newest first, and the total
	// number matching the filter.
	Reports(ctx context.Context, f ReportFilter) ([]domain.Outcome, int, error)
	// AllReports returns every outcome in insertion order.
	AllReports(ctx context.Context) ([]domain.Outcome, error)

	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context, table string) error

	ReadyMessages(ctx context.Context) ([]domain.ReadyMessage, error)
	AddReadyMessage(ctx context.Context, text string) (domain.ReadyMessage, error)
	EditReadyMessage(ctx context.Context, id int64, text string) error
}

// Config selects the database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"eitaa-automation/internal/domain"
)

type SQLite struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

var _ Repository = (*SQLite)(nil)

// Open creates or opens the database at cfg.Path and applies the schema.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps the pragmas below in effect and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	s := &SQLite{db: db, path: cfg.Path, log: log.With().Str("component", "store").Logger()}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS added_contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		added_at INTEGER NOT NULL,
		added_by_phone TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_contacts_phone ON added_contacts(phone);

	CREATE TABLE IF NOT EXISTS dispatch_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		operation_type TEXT NOT NULL DEFAULT '',
		message_content TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		job_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_reports_user_id ON dispatch_reports(user_id);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON dispatch_reports(timestamp);

	CREATE TABLE IF NOT EXISTS ready_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Path is the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) ContactExists(ctx context.Context, phone string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM added_contacts WHERE phone = ?`, phone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup contact: %w", err)
	}
	return true, nil
}

func (s *SQLite) AddContact(ctx context.Context, c domain.Contact, addedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO added_contacts (name, phone, added_at, added_by_phone) VALUES (?, ?, ?, ?)`,
		domain.Truncate(c.Name, domain.MaxNameRunes), c.Phone, time.Now().Unix(), addedBy)
	if err != nil {
		return false, fmt.Errorf("insert contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert contact: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) FilterNewContacts(ctx context.Context, contacts []domain.Contact) ([]domain.Contact, int, error) {
	fresh := make([]domain.Contact, 0, len(contacts))
	seen := make(map[string]struct{}, len(contacts))
	duplicates := 0
	for _, c := range contacts {
		if c.Phone == "" {
			duplicates++
			continue
		}
		if _, ok := seen[c.Phone]; ok {
			duplicates++
			continue
		}
		seen[c.Phone] = struct{}{}

		exists, err := s.ContactExists(ctx, c.Phone)
		if err != nil {
			return nil, 0, err
		}
		if exists {
			duplicates++
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, duplicates, nil
}

func (s *SQLite) ExportContacts(ctx context.Context) ([]domain.StoredContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, phone, added_at, added_by_phone FROM added_contacts ORDER BY added_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredContact
	for rows.Next() {
		var (
			c       domain.StoredContact
			addedAt int64
		)
		if err := rows.Scan(&c.Name, &c.Phone, &addedAt, &c.AddedBy); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		c.AddedAt = time.Unix(addedAt, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveOutcome(ctx context.Context, o domain.Outcome) error {
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO dispatch_reports (user_id, status, error_message, operation_type, message_content, timestamp, phone_number, job_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RecipientID, string(o.Status),
		domain.Truncate(o.Detail, domain.MaxDetailRunes),
		string(o.OperationType),
		domain.Truncate(o.Content, domain.MaxContentRunes),
		ts.Unix(), o.PhoneContext, o.JobID)
	if err != nil {
		return fmt.Errorf("insert dispatch report: %w", err)
	}
	return nil
}

const reportColumns = `user_id, status, error_message, operation_type, message_content, timestamp, phone_number, job_id`

func (s *SQLite) Reports(ctx context.Context, f ReportFilter) ([]domain.Outcome, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Date != "" {
		conds = append(conds, "date(timestamp, 'unixepoch', 'localtime') = ?")
		args = append(args, f.Date)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch_reports"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dispatch reports: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query := "SELECT " + reportColumns + " FROM dispatch_reports" + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	out, err := s.queryOutcomes(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *SQLite) AllReports(ctx context.Context) ([]domain.Outcome, error) {
	return s.queryOutcomes(ctx, "SELECT "+reportColumns+" FROM dispatch_reports ORDER BY id ASC")
}

func (s *SQLite) queryOutcomes(ctx context.Context, query string, args ...any) ([]domain.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatch reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var (
			o              domain.Outcome
			status, opType string
			ts             int64
		)
		if err := rows.Scan(&o.RecipientID, &status, &o.Detail, &opType, &o.Content, &ts, &o.PhoneContext, &o.JobID); err != nil {
			return nil, fmt.Errorf("scan dispatch report row: %w", err)
		}
		o.Status = domain.Status(status)
		o.OperationType = domain.OperationType(opType)
		o.Timestamp = time.Unix(ts, 0)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Path: s.path}
	c := &st.Contacts
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT phone) FROM added_contacts`).Scan(&c.Total, &c.Unique); err != nil {
		return st, fmt.Errorf("count contacts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT date(added_at, 'unixepoch', 'localtime') AS day, COUNT(*)
	FROM added_contacts GROUP BY day ORDER BY day DESC LIMIT 7`)
	if err != nil {
		return st, fmt.Errorf("contacts per day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return st, fmt.Errorf("scan day count: %w", err)
		}
		c.LastDays = append(c.LastDays, d)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_reports`).Scan(&st.Reports); err != nil {
		return st, fmt.Errorf("count dispatch reports: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ready_messages`).Scan(&st.Messages); err != nil {
		return st, fmt.Errorf("count ready messages: %w", err)
	}
	return st, nil
}

func (s *SQLite) Clear(ctx context.Context, table string) error {
	var stmts []string
	switch strings.ToLower(strings.TrimSpace(table)) {
	case TableContacts:
		stmts = []string{`DELETE FROM added_contacts`}
	case TableReports:
		stmts = []string{`DELETE FROM dispatch_reports`}
	case TableMessages:
		stmts = []string{`DELETE FROM ready_messages`}
	case "", "all":
		stmts = []string{`DELETE FROM added_contacts`, `DELETE FROM dispatch_reports`}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	s.log.Info().Str("table", table).Msg("Database cleared")
	return nil
}

func (s *SQLite) ReadyMessages(ctx context.Context) ([]domain.ReadyMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, created_at, updated_at FROM ready_messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ready messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ReadyMessage
	for rows.Next() {
		var (
			m                  domain.ReadyMessage
			created, updatedAt int64
		)
		if err := rows.Scan(&m.ID, &m.Text, &created, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ready message: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0)
		m.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) AddReadyMessage(ctx context.Context, text string) (domain.ReadyMessage, error) {
	now := time.Now()
	m := domain.ReadyMessage{
		Text:      domain.Truncate(strings.TrimSpace(text), domain.MaxContentRunes),
		CreatedAt: time.Unix(now.Unix(), 0),
		UpdatedAt: time.Unix(now.Unix(), 0),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ready_messages (text, created_at, updated_at) VALUES (?, ?, ?)`,
		m.Text, now.Unix(), now.Unix())
	if err != nil {
		return m, fmt.Errorf("insert ready message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return m, fmt.Errorf("insert ready message: %w", err)
	}
	return m, nil
}

func (s *SQLite) EditReadyMessage(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ready_messages SET text = ?, updated_at = ? WHERE id = ?`,
		domain.Truncate(strings.TrimSpace(text), domain.MaxContentRunes), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update ready message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ready message: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ready message %d: %w", id, ErrNotFound)
	}
	return nil
}

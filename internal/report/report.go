// Package report exports dispatch outcomes and added contacts for the
// operator, and keeps the plain-text failed-DM log.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"eitaa-automation/internal/domain"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	sheetName  = "Report"
	idsSheet   = "IDs"
)

var reportHeader = []any{"آی‌دی کاربر", "وضعیت", "توضیحات", "نوع عملیات", "زمان", "شماره تلفن"}

// Source is the durable outcome log.
type Source interface {
	AllReports(ctx context.Context) ([]domain.Outcome, error)
}

// Rows returns the outcomes to export: the durable log when it has any,
// otherwise the in-memory report of the current process.
func Rows(ctx context.Context, src Source, memory []domain.Outcome, log zerolog.Logger) []domain.Outcome {
	if src != nil {
		rows, err := src.AllReports(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Reading stored reports failed, exporting in-memory report")
		} else if len(rows) > 0 {
			return rows
		}
	}
	return memory
}

func operationLabel(op domain.OperationType) string {
	switch op {
	case domain.OpGroupPrefix:
		return "پیام گروه"
	case domain.OpSpreadsheet:
		return "فایل اکسل"
	default:
		return string(op)
	}
}

// WriteXLSX writes the full report workbook. An empty report still gets a
// header and a single placeholder row.
func WriteXLSX(w io.Writer, rows []domain.Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := setRow(f, sheetName, 1, reportHeader); err != nil {
		return err
	}

	if len(rows) == 0 {
		if err := setRow(f, sheetName, 2, []any{"گزارشی موجود نیست", "", "", "", "", ""}); err != nil {
			return err
		}
	}
	for i, o := range rows {
		ts := ""
		if !o.Timestamp.IsZero() {
			ts = o.Timestamp.Local().Format(timeLayout)
		}
		values := []any{o.RecipientID, o.Status.Label(), o.Detail, operationLabel(o.OperationType), ts, o.PhoneContext}
		if err := setRow(f, sheetName, i+2, values); err != nil {
			return err
		}
	}

	widths := map[string]float64{"A": 25, "B": 12, "C": 40, "D": 15, "E": 20, "F": 16}
	for col, width := range widths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// UniqueIDs returns the recipient ids of rows, each once, in first-seen order.
func UniqueIDs(rows []domain.Outcome) []string {
	seen := make(map[string]bool, len(rows))
	var ids []string
	for _, o := range rows {
		id := strings.TrimSpace(o.RecipientID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// WriteIDsXLSX writes the unique recipient ids as a one-column workbook.
func WriteIDsXLSX(w io.Writer, rows []domain.Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", idsSheet); err != nil {
		return err
	}
	if err := setRow(f, idsSheet, 1, []any{"لیست آی‌دی‌ها"}); err != nil {
		return err
	}
	for i, id := range UniqueIDs(rows) {
		if err := setRow(f, idsSheet, i+2, []any{id}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(idsSheet, "A", "A", 30); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteIDsText writes one unique id per line.
func WriteIDsText(w io.Writer, rows []domain.Outcome) error {
	for _, id := range UniqueIDs(rows) {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

// WriteIDsCSV writes the unique ids under a single header column.
func WriteIDsCSV(w io.Writer, rows []domain.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id"}); err != nil {
		return err
	}
	for _, id := range UniqueIDs(rows) {
		if err := cw.Write([]string{id}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteContactsCSV exports the added-contacts log. A UTF-8 BOM leads the file
// so spreadsheet programs pick the right encoding for the Persian header.
func WriteContactsCSV(w io.Writer, contacts []domain.StoredContact) error {
	if _, err := io.WriteString(w, "\xef\xbb\xbf"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"نام", "شماره تلفن", "تاریخ اضافه شدن", "اضافه شده توسط"}); err != nil {
		return err
	}
	for _, c := range contacts {
		added := ""
		if !c.AddedAt.IsZero() {
			added = c.AddedAt.Local().Format(timeLayout)
		}
		if err := cw.Write([]string{c.Name, c.Phone, added, c.AddedBy}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

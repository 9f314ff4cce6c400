// Package spreadsheet reads uploaded recipient and contact lists from .xlsx
// or .csv files into plain string rows.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"eitaa-automation/internal/domain"
)

var ErrParse = errors.New("cannot parse spreadsheet")

// ReadRows returns the rows of the first (active) sheet of an .xlsx file or of
// a .csv file, chosen by the extension of name. Files with another extension
// are tried as .xlsx first, then as .csv.
func ReadRows(name string, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %w", ErrParse, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrParse)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data)
	case ".csv", ".txt":
		return readCSV(data)
	default:
		if rows, err := readXLSX(data); err == nil {
			return rows, nil
		}
		return readCSV(data)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
		}
		sheet = sheets[0]
	}
	// Raw values keep long phone numbers out of the General number format.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %w", ErrParse, sheet, err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return records, nil
}

var handleHeaders = map[string]bool{
	"username":      true,
	"usernames":     true,
	"user":          true,
	"user_id":       true,
	"id":            true,
	"handle":        true,
	"آیدی":          true,
	"آی‌دی":         true,
	"آیدی کاربر":    true,
	"آی‌دی کاربر":   true,
	"نام کاربری":    true,
	"شناسه":         true,
	"شناسه کاربری":  true,
	"لیست آی‌دی‌ها": true,
}

// Handles reads recipient handles from column 0. A header row is recognised
// by its label and skipped, as are blank and "nan" cells. "@" is prepended
// where missing.
func Handles(rows [][]string) []string {
	var out []string
	for i, row := range rows {
		v := strings.TrimSpace(cell(row, 0))
		if i == 0 && handleHeaders[strings.ToLower(v)] {
			continue
		}
		switch strings.ToLower(v) {
		case "", "nan", "none", "null", "@":
			continue
		}
		out = append(out, domain.AsHandle(v))
	}
	return out
}

// ContactRow is one data row of a contacts sheet. Row is the 1-based sheet
// row number, for error reporting.
type ContactRow struct {
	Row   int
	Name  string
	Phone string
}

// ContactRows reads name (column 0) and phone (column 1) from every row after
// the header. Fully blank rows are dropped.
func ContactRows(rows [][]string) []ContactRow {
	var out []ContactRow
	for i, row := range rows {
		if i == 0 {
			continue
		}
		name := strings.TrimSpace(cell(row, 0))
		phone := strings.TrimSpace(cell(row, 1))
		if name == "" && phone == "" {
			continue
		}
		out = append(out, ContactRow{Row: i + 1, Name: name, Phone: CleanNumeric(phone)})
	}
	return out
}

// CleanNumeric undoes the float rendering spreadsheets apply to numbers
// ("9123456789.0", "9.123456789E9") so digits survive. Other text is
// returned unchanged.
func CleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, ".eE") {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f < 0 || f != math.Trunc(f) {
		return s
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

package spreadsheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func xlsx(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", name, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadRowsXLSX(t *testing.T) {
	buf := xlsx(t, [][]any{{"نام", "تلفن"}, {"علی", 9123456789}, {"سارا", "09350000000"}})

	rows, err := ReadRows("contacts.xlsx", buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "علی", rows[1][0])
	assert.Equal(t, "9123456789", CleanNumeric(rows[1][1]))
	assert.Equal(t, "09350000000", rows[2][1])
}

func TestReadRowsCSVWithBOM(t *testing.T) {
	data := "\xef\xbb\xbfusername\nalice\n@bob,extra\n"
	rows, err := ReadRows("list.csv", strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "@bob"}, Handles(rows))
}

func TestReadRowsUnknownExtensionFallsBack(t *testing.T) {
	rows, err := ReadRows("upload", strings.NewReader("a\nb\n"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = ReadRows("upload.bin", xlsx(t, [][]any{{"x"}}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x"}}, rows)
}

func TestReadRowsErrors(t *testing.T) {
	_, err := ReadRows("a.xlsx", strings.NewReader("not a zip"))
	assert.ErrorIs(t, err, ErrParse)

	_, err = ReadRows("a.csv", strings.NewReader("   "))
	assert.ErrorIs(t, err, ErrParse)

	_, err = ReadRows("a.csv", strings.NewReader("\"unterminated\n"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestHandles(t *testing.T) {
	rows := [][]string{
		{"آی‌دی کاربر"},
		{" alice "},
		{""},
		{"nan"},
		{},
		{"@Bob"},
	}
	assert.Equal(t, []string{"@alice", "@Bob"}, Handles(rows))
}

func TestHandlesWithoutHeader(t *testing.T) {
	assert.Equal(t, []string{"@alice", "@bob"}, Handles([][]string{{"alice"}, {"bob"}}))
}

func TestContactRows(t *testing.T) {
	rows := [][]string{
		{"name", "phone"},
		{"Ali", "9.123456789E9"},
		{"", ""},
		{"Sara"},
		{" Reza ", " 0912 345 6789 "},
	}
	got := ContactRows(rows)
	require.Len(t, got, 3)
	assert.Equal(t, ContactRow{Row: 2, Name: "Ali", Phone: "9123456789"}, got[0])
	assert.Equal(t, ContactRow{Row: 4, Name: "Sara", Phone: ""}, got[1])
	assert.Equal(t, ContactRow{Row: 5, Name: "Reza", Phone: "0912 345 6789"}, got[2])
}

func TestCleanNumeric(t *testing.T) {
	assert.Equal(t, "9123456789", CleanNumeric("9123456789.0"))
	assert.Equal(t, "9123456789", CleanNumeric("9.123456789e+09"))
	assert.Equal(t, "912.5", CleanNumeric("912.5"))
	assert.Equal(t, "+98 912", CleanNumeric("+98 912"))
	assert.Equal(t, "abc", CleanNumeric("abc"))
}

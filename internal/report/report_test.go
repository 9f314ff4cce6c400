package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"eitaa-automation/internal/domain"
)

type fakeSource struct {
	rows []domain.Outcome
	err  error
}

func (s fakeSource) AllReports(context.Context) ([]domain.Outcome, error) {
	return s.rows, s.err
}

var sample = []domain.Outcome{
	{RecipientID: "@alice", Status: domain.StatusSuccess, Detail: "sent successfully", OperationType: domain.OpSpreadsheet, Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.Local), PhoneContext: "9123456789"},
	{RecipientID: "@bob", Status: domain.StatusFailed, Detail: "element timeout", OperationType: domain.OpGroupPrefix},
	{RecipientID: "@alice", Status: domain.StatusSkipped, Detail: domain.SelfSkipReason, OperationType: domain.OpSpreadsheet},
}

func TestRowsPrefersDurableLog(t *testing.T) {
	memory := []domain.Outcome{{RecipientID: "@mem"}}

	got := Rows(context.Background(), fakeSource{rows: sample}, memory, zerolog.Nop())
	assert.Equal(t, sample, got)

	got = Rows(context.Background(), fakeSource{}, memory, zerolog.Nop())
	assert.Equal(t, memory, got)

	got = Rows(context.Background(), fakeSource{err: errors.New("locked")}, memory, zerolog.Nop())
	assert.Equal(t, memory, got)

	got = Rows(context.Background(), nil, memory, zerolog.Nop())
	assert.Equal(t, memory, got)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "آی‌دی کاربر", rows[0][0])
	assert.Equal(t, []string{"@alice", "موفق", "sent successfully", "فایل اکسل", "2026-01-02 10:00:00", "9123456789"}, rows[1])
	assert.Equal(t, "ناموفق", rows[2][1])
	assert.Equal(t, "رد شده", rows[3][1])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "گزارشی موجود نیست", rows[1][0])
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"@alice", "@bob"}, UniqueIDs(sample))
}

func TestWriteIDs(t *testing.T) {
	var txt bytes.Buffer
	require.NoError(t, WriteIDsText(&txt, sample))
	assert.Equal(t, "@alice\n@bob\n", txt.String())

	var csvBuf bytes.Buffer
	require.NoError(t, WriteIDsCSV(&csvBuf, sample))
	assert.Equal(t, "id\n@alice\n@bob\n", csvBuf.String())

	var xl bytes.Buffer
	require.NoError(t, WriteIDsXLSX(&xl, sample))
	f, err := excelize.OpenReader(&xl)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(idsSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"لیست آی‌دی‌ها"}, {"@alice"}, {"@bob"}}, rows)
}

func TestWriteContactsCSV(t *testing.T) {
	var buf bytes.Buffer
	contacts := []domain.StoredContact{{
		Contact: domain.Contact{Name: "علی", Phone: "9123456789"},
		AddedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local),
		AddedBy: "9120000000",
	}}
	require.NoError(t, WriteContactsCSV(&buf, contacts))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\xef\xbb\xbf"))
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\xef\xbb\xbf")), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "نام,شماره تلفن,تاریخ اضافه شدن,اضافه شده توسط", lines[0])
	assert.Equal(t, "علی,9123456789,2026-03-04 05:06:07,9120000000", lines[1])
}

func TestFailedLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "failed_dms.txt")
	l := NewFailedLog(path)
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	require.NoError(t, l.Append(at, "bob", "element timeout"))
	require.NoError(t, l.Append(at, "@carol", "no compose box"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2026-05-06 07:08:09 - @bob - Reason: element timeout\n"+
			"2026-05-06 07:08:09 - @carol - Reason: no compose box\n",
		string(data))
}

func TestFailedLogDisabled(t *testing.T) {
	var l *FailedLog
	assert.NoError(t, l.Append(time.Now(), "@x", "y"))
	assert.NoError(t, NewFailedLog("").Append(time.Now(), "@x", "y"))
}

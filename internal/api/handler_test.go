package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eitaa-automation/internal/browser/browsertest"
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/jobs"
	"eitaa-automation/internal/logging"
	"eitaa-automation/internal/session"
	"eitaa-automation/internal/store"
)

type server struct {
	h    http.Handler
	mgr  *jobs.Manager
	repo *store.SQLite
}

func newServer(t *testing.T) *server {
	t.Helper()
	repo, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "eitaa.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	mgr := jobs.New(jobs.Options{}, session.New(logging.NewRing(10)), browsertest.NewProvider(&browsertest.Page{}), repo, nil, zerolog.Nop())
	mgr.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})

	h := NewHandler(mgr, repo, zerolog.Nop())
	h.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return &server{h: h.Router(), mgr: mgr, repo: repo}
}

func (s *server) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func (s *server) form(t *testing.T, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, req)
}

func (s *server) upload(t *testing.T, path, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func (s *server) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"foo": "bar"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "bar", decode(t, w)["foo"])
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["database"])

	assert.Equal(t, http.StatusOK, s.get(t, "/ping").Code)
}

func TestHealthDatabaseDown(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.repo.Close())

	w := s.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]any)["database"])
}

func TestStartValidation(t *testing.T) {
	s := newServer(t)

	w := s.form(t, "/start", url.Values{"mode": {"login_only"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", decode(t, w)["status"])

	w = s.form(t, "/start", url.Values{"phone": {"0912"}, "mode": {"login_only"}, "min_d": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, bounds := range [][2]string{{"NaN", "NaN"}, {"1", "Inf"}, {"-Inf", "2"}} {
		w = s.form(t, "/start", url.Values{"phone": {"09123456789"}, "mode": {"login_only"}, "min_d": {bounds[0]}, "max_d": {bounds[1]}})
		assert.Equal(t, http.StatusBadRequest, w.Code, "min=%s max=%s", bounds[0], bounds[1])
	}
	assert.False(t, s.mgr.State().DispatchRunning())
}

func TestStartLoginOnlyWithJSON(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"phone":"09123456789","mode":"login_only","min_d":1,"max_d":2}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "started", body["status"])
	assert.NotEmpty(t, body["job_id"])

	require.Eventually(t, func() bool { return !s.mgr.State().DispatchRunning() }, 5*time.Second, 10*time.Millisecond)

	st := decode(t, s.get(t, "/get-status"))
	assert.Equal(t, "COMPLETED", st["state"])
	assert.Equal(t, false, st["otp_required"])
	assert.Contains(t, st, "logs")
}

func TestSubmitOTPWithoutLogin(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusConflict, s.form(t, "/submit-otp", url.Values{"code": {"123"}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.form(t, "/submit-otp", url.Values{"code": {" "}}).Code)
}

func TestUploadExcel(t *testing.T) {
	s := newServer(t)

	w := s.upload(t, "/upload-excel", "ids.csv", "username\nalice\n@bob\n\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])
	assert.Equal(t, []string{"@alice", "@bob"}, s.mgr.State().Targets())

	w = s.upload(t, "/upload-excel", "ids.xlsx", "not a workbook")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.form(t, "/upload-excel", url.Values{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadContactsExcel(t *testing.T) {
	s := newServer(t)
	_, err := s.repo.AddContact(context.Background(), domain.Contact{Name: "Old", Phone: "9350000000"}, "")
	require.NoError(t, err)

	sheet := "name,phone\nAli,09123456789\nOld,+98 935 000 0000\n,09121111111\nBad,123\n"
	w := s.upload(t, "/upload-contacts-excel", "contacts.csv", sheet)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(4), body["total_count"])
	assert.Equal(t, float64(1), body["new_count"])
	assert.Equal(t, float64(1), body["duplicate_count"])
	assert.Equal(t, float64(2), body["invalid_count"])

	st := decode(t, s.get(t, "/get-contacts-status"))
	assert.Equal(t, float64(1), st["filtered_count"])
	assert.Equal(t, float64(1), st["duplicate_count"])

	assert.Equal(t, http.StatusOK, s.form(t, "/clear-contacts-list", nil).Code)
	st = decode(t, s.get(t, "/get-contacts-status"))
	assert.Equal(t, float64(0), st["filtered_count"])

	w = s.form(t, "/start-add-contacts", url.Values{"phone": {"09120000000"}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "batch was cleared")
}

func TestReadyMessages(t *testing.T) {
	s := newServer(t)

	w := s.form(t, "/add-ready-message", url.Values{"message": {"  سلام  "}})
	require.Equal(t, http.StatusOK, w.Code)
	added := decode(t, w)["message"].(map[string]any)
	assert.Equal(t, "سلام", added["text"])
	id := added["id"].(float64)

	w = s.form(t, "/edit-ready-message", url.Values{"id": {"1"}, "new_message": {"درود"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), id)

	msgs := decode(t, s.get(t, "/get-ready-messages"))["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "درود", msgs[0].(map[string]any)["text"])

	assert.Equal(t, http.StatusNotFound, s.form(t, "/edit-ready-message", url.Values{"id": {"99"}, "new_message": {"x"}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.form(t, "/edit-ready-message", url.Values{"id": {"x"}, "new_message": {"x"}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.form(t, "/add-ready-message", url.Values{"message": {""}}).Code)
}

func TestReportsAndExports(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/export-ids-simple").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/export-ids-excel").Code)

	w := s.get(t, "/export-report-excel")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "eitaa_report_20260102_030405.xlsx")

	ctx := context.Background()
	for _, o := range []domain.Outcome{
		{RecipientID: "@alice", Status: domain.StatusSuccess, OperationType: domain.OpSpreadsheet, Timestamp: time.Now()},
		{RecipientID: "@bob", Status: domain.StatusFailed, Detail: "timeout", OperationType: domain.OpSpreadsheet, Timestamp: time.Now()},
		{RecipientID: "@alice", Status: domain.StatusSuccess, OperationType: domain.OpSpreadsheet, Timestamp: time.Now()},
	} {
		require.NoError(t, s.repo.SaveOutcome(ctx, o))
	}

	w = s.get(t, "/export-ids-simple")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "@alice\n@bob\n", w.Body.String())

	body := decode(t, s.get(t, "/get-dispatch-report"))
	assert.Equal(t, "database", body["source"])
	assert.Len(t, body["report"], 3)

	body = decode(t, s.get(t, "/get-dispatch-report?status=failed"))
	assert.Equal(t, float64(1), body["total"])

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/get-dispatch-report?status=bogus").Code)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/get-dispatch-report?limit=ten").Code)

	stats := decode(t, s.get(t, "/get-database-stats"))
	assert.Equal(t, "success", stats["status"])
	assert.Equal(t, float64(3), stats["reports_count"])
}

func TestClearDatabase(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.repo.SaveOutcome(context.Background(), domain.Outcome{RecipientID: "@a", Status: domain.StatusSuccess, Timestamp: time.Now()}))

	assert.Equal(t, http.StatusBadRequest, s.form(t, "/clear-database", url.Values{"table": {"users"}}).Code)

	w := s.form(t, "/clear-database", url.Values{"table": {"reports"}})
	require.Equal(t, http.StatusOK, w.Code)
	rows, err := s.repo.AllReports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExportContactsCSV(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/export-contacts-csv").Code)

	_, err := s.repo.AddContact(context.Background(), domain.Contact{Name: "Ali", Phone: "9123456789"}, "9120000000")
	require.NoError(t, err)

	w := s.get(t, "/export-contacts-csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ali,9123456789,")
}

func TestLogoutAndStop(t *testing.T) {
	s := newServer(t)

	w := s.form(t, "/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["was_running"])

	assert.Equal(t, http.StatusOK, s.form(t, "/stop-add-contacts", nil).Code)
	assert.Equal(t, http.StatusOK, s.form(t, "/logout", nil).Code)
}

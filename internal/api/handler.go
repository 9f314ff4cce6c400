// Package api is the HTTP front-end of the bot: job control, uploads,
// status polling and report downloads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"eitaa-automation/internal/jobs"
	"eitaa-automation/internal/store"
)

const (
	maxUploadBytes = 32 << 20
	logTailLines   = 50
)

// Handler carries the dependencies shared by every endpoint.
type Handler struct {
	jobs *jobs.Manager
	repo store.Repository
	log  zerolog.Logger

	// Now stamps download file names.
	Now func() time.Time
}

func NewHandler(mgr *jobs.Manager, repo store.Repository, log zerolog.Logger) *Handler {
	return &Handler{jobs: mgr, repo: repo, log: log, Now: time.Now}
}

// Router builds the chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Post("/start", h.Start)
	r.Post("/submit-otp", h.SubmitOTP)
	r.Post("/stop", h.Stop)
	r.Get("/get-status", h.GetStatus)
	r.Post("/logout", h.Logout)

	r.Post("/upload-excel", h.UploadExcel)
	r.Post("/upload-contacts-excel", h.UploadContactsExcel)
	r.Post("/start-add-contacts", h.StartAddContacts)
	r.Post("/stop-add-contacts", h.StopAddContacts)
	r.Get("/get-contacts-status", h.GetContactsStatus)
	r.Post("/clear-contacts-list", h.ClearContactsList)

	r.Get("/get-dispatch-report", h.GetDispatchReport)
	r.Post("/clear-report", h.ClearReport)
	r.Get("/export-report-excel", h.ExportReportExcel)
	r.Get("/export-ids-excel", h.ExportIDsExcel)
	r.Get("/export-ids-simple", h.ExportIDsSimple)
	r.Get("/export-contacts-csv", h.ExportContactsCSV)

	r.Get("/get-database-stats", h.GetDatabaseStats)
	r.Post("/clear-database", h.ClearDatabase)

	r.Get("/get-ready-messages", h.GetReadyMessages)
	r.Post("/add-ready-message", h.AddReadyMessage)
	r.Post("/edit-ready-message", h.EditReadyMessage)
}

const healthCheckTimeout = 5 * time.Second

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status, code := "healthy", http.StatusOK
	if err := h.repo.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		checks["database"] = "unreachable"
		status, code = "degraded", http.StatusServiceUnavailable
	}
	JSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		// Status polls arrive every second or two; keep them out of the ring.
		ev := h.log.Debug()
		if r.Method != http.MethodGet || ww.Status() >= http.StatusBadRequest {
			ev = h.log.Info()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status": "error", "message": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes {"status": "error", "message": ...}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"status": "error", "message": message})
}

// params holds the fields of a form or JSON request body.
type params map[string]string

func (p params) str(key string) string { return strings.TrimSpace(p[key]) }

// raw keeps surrounding whitespace, for message bodies.
func (p params) raw(key string) string { return p[key] }

func (p params) float(key string) (float64, error) {
	v := p.str(key)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

// readParams accepts application/json, multipart and urlencoded bodies.
func readParams(r *http.Request) (params, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]any
		dec := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		p := make(params, len(body))
		for k, v := range body {
			switch t := v.(type) {
			case nil:
			case string:
				p[k] = t
			default:
				p[k] = fmt.Sprint(t)
			}
		}
		return p, nil
	}

	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	p := make(params, len(r.Form))
	for k := range r.Form {
		p[k] = r.Form.Get(k)
	}
	return p, nil
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

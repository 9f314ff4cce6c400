package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/report"
	"eitaa-automation/internal/store"
)

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) stamp() string {
	return h.Now().Format("20060102_150405")
}

// GetDispatchReport lists outcomes. Without query parameters it returns the
// whole durable log, or the in-memory report when the log is empty. status,
// date, limit and offset page through the durable log instead.
func (h *Handler) GetDispatchReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("status") == "" && q.Get("date") == "" && q.Get("limit") == "" && q.Get("offset") == "" {
		rows, src := h.jobs.Report(r.Context())
		if rows == nil {
			rows = []domain.Outcome{}
		}
		JSON(w, http.StatusOK, map[string]any{"report": rows, "source": src})
		return
	}

	f := store.ReportFilter{Status: domain.Status(q.Get("status")), Date: q.Get("date")}
	if f.Status != "" && !f.Status.Valid() {
		Error(w, http.StatusBadRequest, "unknown status")
		return
	}
	var err error
	if f.Limit, err = atoiOr(q.Get("limit"), 100); err != nil {
		Error(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	if f.Offset, err = atoiOr(q.Get("offset"), 0); err != nil {
		Error(w, http.StatusBadRequest, "offset must be a number")
		return
	}
	rows, total, err := h.repo.Reports(r.Context(), f)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.Outcome{}
	}
	JSON(w, http.StatusOK, map[string]any{"report": rows, "total": total, "source": "database"})
}

func atoiOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func (h *Handler) ClearReport(w http.ResponseWriter, _ *http.Request) {
	h.jobs.ClearReport()
	JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) exportRows(r *http.Request) []domain.Outcome {
	return report.Rows(r.Context(), h.repo, h.jobs.State().Report(), h.log)
}

// send renders into a buffer first so a failed export can still answer
// with a JSON error.
func (h *Handler) send(w http.ResponseWriter, contentType, filename string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		h.log.Error().Err(err).Str("file", filename).Msg("Export failed")
		Error(w, http.StatusInternalServerError, "failed to build file: "+err.Error())
		return
	}
	attachment(w, contentType, filename)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ExportReportExcel(w http.ResponseWriter, r *http.Request) {
	rows := h.exportRows(r)
	h.send(w, xlsxType, "eitaa_report_"+h.stamp()+".xlsx", func(out io.Writer) error {
		return report.WriteXLSX(out, rows)
	})
}

func (h *Handler) ExportIDsExcel(w http.ResponseWriter, r *http.Request) {
	rows := h.exportRows(r)
	if len(report.UniqueIDs(rows)) == 0 {
		Error(w, http.StatusNotFound, "no ids to download")
		return
	}
	h.send(w, xlsxType, "eitaa_ids_"+h.stamp()+".xlsx", func(out io.Writer) error {
		return report.WriteIDsXLSX(out, rows)
	})
}

func (h *Handler) ExportIDsSimple(w http.ResponseWriter, r *http.Request) {
	rows := h.exportRows(r)
	if len(report.UniqueIDs(rows)) == 0 {
		Error(w, http.StatusNotFound, "no ids to download")
		return
	}
	h.send(w, "text/plain; charset=utf-8", "eitaa_ids_"+h.stamp()+".txt", func(out io.Writer) error {
		return report.WriteIDsText(out, rows)
	})
}

func (h *Handler) GetDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		store.Stats
	}{"success", stats})
}

func (h *Handler) ClearDatabase(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	table := p.str("table")
	err = h.repo.Clear(r.Context(), table)
	switch {
	case errors.Is(err, store.ErrUnknownTable):
		Error(w, http.StatusBadRequest, err.Error())
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		if table == "" {
			table = "all"
		}
		JSON(w, http.StatusOK, map[string]string{"status": "success", "table": table})
	}
}

package api

import (
	"bytes"
	"errors"
	"net/http"

	"eitaa-automation/internal/contacts"
	"eitaa-automation/internal/report"
	"eitaa-automation/internal/session"
	"eitaa-automation/internal/spreadsheet"
)

// UploadContactsExcel validates a contacts sheet and keeps the contacts not
// added before as the next batch.
func (h *Handler) UploadContactsExcel(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	valid, invalid := contacts.ParseRows(spreadsheet.ContactRows(rows))

	up, err := h.jobs.LoadContacts(r.Context(), valid, invalid)
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		Error(w, http.StatusConflict, "contacts job is running")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"total_count":     up.Total,
		"new_count":       up.New,
		"duplicate_count": up.Duplicates,
		"invalid_count":   len(up.Invalid),
		"invalid_rows":    up.Invalid,
	})
}

func (h *Handler) StartAddContacts(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := h.jobs.StartContacts(p.str("phone"))
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		JSON(w, http.StatusOK, map[string]string{"status": "already_running"})
	case err != nil:
		Error(w, http.StatusBadRequest, err.Error())
	default:
		JSON(w, http.StatusOK, map[string]string{"status": "started", "job_id": jobID})
	}
}

func (h *Handler) StopAddContacts(w http.ResponseWriter, _ *http.Request) {
	running := h.jobs.StopContacts()
	JSON(w, http.StatusOK, map[string]any{"status": "stopping", "was_running": running})
}

func (h *Handler) GetContactsStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.jobs.ContactsStatus())
}

func (h *Handler) ClearContactsList(w http.ResponseWriter, _ *http.Request) {
	h.jobs.ClearContacts()
	JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) ExportContactsCSV(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.ExportContacts(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(stored) == 0 {
		Error(w, http.StatusNotFound, "no contacts in the database")
		return
	}
	var buf bytes.Buffer
	if err := report.WriteContactsCSV(&buf, stored); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	attachment(w, "text/csv; charset=utf-8", "eitaa_contacts_"+h.stamp()+".csv")
	_, _ = w.Write(buf.Bytes())
}

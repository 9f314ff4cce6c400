package api

import (
	"errors"
	"net/http"

	"eitaa-automation/internal/jobs"
	"eitaa-automation/internal/session"
	"eitaa-automation/internal/spreadsheet"
)

// Start launches a dispatch job. Field names follow the web form.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	minDelay, err := p.float("min_d")
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	maxDelay, err := p.float("max_d")
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.jobs.StartDispatch(jobs.DispatchRequest{
		Phone:     p.str("phone"),
		Mode:      p.str("mode"),
		Group:     p.str("group_name"),
		Prefix:    p.str("keyword"),
		Message:   p.raw("msg"),
		OwnHandle: p.str("your_own_username"),
		MinDelay:  minDelay,
		MaxDelay:  maxDelay,
	})
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		JSON(w, http.StatusOK, map[string]string{"status": "already_running"})
	case err != nil:
		Error(w, http.StatusBadRequest, err.Error())
	default:
		JSON(w, http.StatusOK, map[string]string{"status": "started", "job_id": jobID})
	}
}

func (h *Handler) SubmitOTP(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.jobs.SubmitOTP(p.str("code"))
	switch {
	case errors.Is(err, session.ErrEmptyOTP):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoPendingOTP), errors.Is(err, session.ErrOTPAlreadySubmitted):
		Error(w, http.StatusConflict, err.Error())
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	running := h.jobs.Stop()
	JSON(w, http.StatusOK, map[string]any{"status": "stopping", "was_running": running})
}

type statusResponse struct {
	session.DispatchStatus
	OTPRequired bool     `json:"otp_required"`
	Logs        []string `json:"logs"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.jobs.State()
	JSON(w, http.StatusOK, statusResponse{
		DispatchStatus: h.jobs.Status(),
		OTPRequired:    st.OTP.Pending(),
		Logs:           st.LogTail(logTailLines),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	err := h.jobs.Logout()
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		Error(w, http.StatusConflict, "stop the running job before logging out")
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

// UploadExcel loads the recipient list for the spreadsheet mode.
func (h *Handler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	n := h.jobs.LoadTargets(spreadsheet.Handles(rows))
	JSON(w, http.StatusOK, map[string]any{"status": "success", "count": n})
}

// readUpload parses the "file" part of a multipart request into rows. It
// writes the error response itself and reports whether to continue.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([][]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	defer file.Close()

	rows, err := spreadsheet.ReadRows(header.Filename, file)
	if err != nil {
		h.log.Warn().Err(err).Str("file", header.Filename).Msg("Upload rejected")
		Error(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return rows, true
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/store"
)

func (h *Handler) GetReadyMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.repo.ReadyMessages(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []domain.ReadyMessage{}
	}
	JSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) AddReadyMessage(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(p.raw("message"))
	if text == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	msg, err := h.repo.AddReadyMessage(r.Context(), text)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"status": "added", "message": msg})
}

// EditReadyMessage replaces the text of message id.
func (h *Handler) EditReadyMessage(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := strconv.ParseInt(p.str("id"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "id must be a number")
		return
	}
	text := strings.TrimSpace(p.raw("new_message"))
	if text == "" {
		Error(w, http.StatusBadRequest, "new_message is required")
		return
	}

	err = h.repo.EditReadyMessage(r.Context(), id, text)
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "no message with that id")
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		JSON(w, http.StatusOK, map[string]any{"status": "success", "id": id})
	}
}

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type ReminderHandler struct {
	Lists     *state.Service
	Validator *validation.Validator
	Log       *slog.Logger
}

type ReminderRequest struct {
	MediaID              int            `json:"mediaId" validate:"gte=0"`
	Title                string         `json:"title" validate:"required,max=200"`
	Notes                string         `json:"notes" validate:"max=2000"`
	StartDateTime        time.Time      `json:"startDateTime"`
	RepeatIntervalDays   int            `json:"repeatIntervalDays" validate:"gte=0,lte=3650"`
	RepeatOnDays         []time.Weekday `json:"repeatOnDays" validate:"max=7,dive,gte=0,lte=6"`
	AutoStopOnCompletion bool           `json:"autoStopOnCompletion"`
}

func (req ReminderRequest) toModel(id string) model.Reminder {
	return model.Reminder{
		ID:                   id,
		MediaID:              req.MediaID,
		Title:                req.Title,
		Notes:                req.Notes,
		StartDateTime:        req.StartDateTime,
		RepeatIntervalDays:   req.RepeatIntervalDays,
		RepeatOnDays:         req.RepeatOnDays,
		AutoStopOnCompletion: req.AutoStopOnCompletion,
	}
}

func (h *ReminderHandler) decode(w http.ResponseWriter, r *http.Request) (ReminderRequest, bool) {
	var req ReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return req, false
	}
	return req, true
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	reminders := h.Lists.Snapshot().Reminders
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.Lists.AddReminder(r.Context(), req.toModel(""))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.Lists.UpdateReminder(r.Context(), req.toModel(r.PathValue("id"))); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Lists.DeleteReminder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

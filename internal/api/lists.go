package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/tracker"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type ListHandler struct {
	Lists     *state.Service
	Tracker   *tracker.Reconciler
	Validator *validation.Validator
	Log       *slog.Logger
}

type ToggleRequest struct {
	// Media is an optional catalog record that spares the tracker a fetch.
	Media *model.Media `json:"media"`
}

type ToggleResponse struct {
	MediaID int  `json:"mediaId"`
	Active  bool `json:"active"`
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		JSONError(w, "Invalid media id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *ListHandler) GetLists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Lists.Snapshot())
}

func (h *ListHandler) ToggleList(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ToggleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && err != io.EOF {
			JSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.Media != nil && req.Media.ID != id {
		req.Media = nil
	}

	added, err := h.Lists.ToggleList(r.Context(), r.PathValue("list"), id, req.Media)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{MediaID: id, Active: added})
}

func (h *ListHandler) ToggleEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	on, err := h.Lists.ToggleEpisode(r.Context(), id, r.PathValue("episode"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{MediaID: id, Active: on})
}

func (h *ListHandler) ToggleChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	on, err := h.Lists.ToggleChapter(r.Context(), id, r.PathValue("chapter"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{MediaID: id, Active: on})
}

type EpisodeLinkRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Ongoing bool   `json:"ongoing"`
}

func (h *ListHandler) SetEpisodeLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req EpisodeLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Lists.SetEpisodeLink(r.Context(), id, model.EpisodeLink{URL: req.URL, Ongoing: req.Ongoing}); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) RemoveEpisodeLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Lists.RemoveEpisodeLink(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetComment stores the request body verbatim as the comment document.
func (h *ListHandler) SetComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || !json.Valid(raw) {
		JSONError(w, "Comment must be a JSON document", http.StatusBadRequest)
		return
	}
	if err := h.Lists.SetComment(r.Context(), id, raw); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Lists.SetComment(r.Context(), id, nil); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) ToggleExcluded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	excluded, err := h.Lists.ToggleExcludedItem(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{MediaID: id, Active: excluded})
}

type ActivityReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func (h *ListHandler) MarkActivityRead(w http.ResponseWriter, r *http.Request) {
	var req ActivityReadRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Lists.MarkActivityRead(r.Context(), req.IDs...); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TrackedResponse struct {
	Media  []model.Media `json:"media"`
	Hidden int           `json:"hidden"`
}

// GetTracked lists the tracked-media cache in id order, minus media in a
// hidden genre unless ?all=true.
func (h *ListHandler) GetTracked(w http.ResponseWriter, r *http.Request) {
	tracked, err := h.Tracker.Tracked(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	showAll := r.URL.Query().Get("all") == "true"
	hidden := h.Lists.EffectiveHiddenGenres()

	resp := TrackedResponse{Media: make([]model.Media, 0, len(tracked))}
	for _, m := range tracked {
		if !showAll && state.IsHidden(m, hidden) {
			resp.Hidden++
			continue
		}
		resp.Media = append(resp.Media, m)
	}
	slices.SortFunc(resp.Media, func(a, b model.Media) int { return a.ID - b.ID })
	writeJSON(w, http.StatusOK, resp)
}

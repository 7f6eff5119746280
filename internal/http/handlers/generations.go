package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createGenerationRequest struct {
	SourceImageID string `json:"source_image_id"`
	StyleID       string `json:"style_id"`
	CustomPrompt  string `json:"custom_prompt,omitempty"`
}

const maxJSONBody = 64 << 10

func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req createGenerationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	job, err := a.Service.CreateJob(r.Context(), a.currentUserID(r), req.SourceImageID, req.StyleID, req.CustomPrompt)
	if err != nil {
		a.fail(w, r, err, msgImageNotFound)
		return
	}
	a.json(w, http.StatusCreated, job)
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.GetJob(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, msgJobNotFound)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	page, err := a.Service.ListHistory(r.Context(), a.currentUserID(r), limit, offset)
	if err != nil {
		a.fail(w, r, err, msgNotFound)
		return
	}
	a.json(w, http.StatusOK, page)
}

// Me returns the authenticated user and their credit balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	user, err := a.Service.GetProfile(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err, msgUserNotFound)
		return
	}
	a.json(w, http.StatusOK, user)
}

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	styles, err := a.Service.ListStyles(r.Context())
	if err != nil {
		a.fail(w, r, err, msgNotFound)
		return
	}
	a.json(w, http.StatusOK, styles)
}

// queryInt reads an optional non-negative integer parameter; 0 means unset.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

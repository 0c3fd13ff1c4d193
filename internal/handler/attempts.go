package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/studytool/internal/i18n"
	"github.com/pavelanni/studytool/internal/model"
)

type saveProgressResponse struct {
	Success     bool                `json:"success"`
	AttemptID   int64               `json:"attemptId"`
	Status      model.AttemptStatus `json:"status"`
	LastSavedAt *time.Time          `json:"lastSavedAt"`
}

func (h *Handler) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	var u model.ProgressUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	a, err := h.grading.SaveProgress(r.Context(), attemptID, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveProgressResponse{
		Success:     true,
		AttemptID:   a.ID,
		Status:      a.Status,
		LastSavedAt: a.Progress.LastSavedAt,
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	view, err := h.grading.GetProgress(r.Context(), attemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleValidationStatus(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	st, err := h.grading.ValidationStatus(r.Context(), attemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	review, err := h.grading.Review(r.Context(), attemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, r, appI18n.Td(r.Context(), "ErrInvalidParam", map[string]any{"Name": "limit"}), err)
			return
		}
		limit = min(n, 100)
	}
	attempts, err := h.grading.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

type jobResponse struct {
	JobID           string  `json:"jobId"`
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	ResultID        *int64  `json:"resultId"`
	Error           *string `json:"error"`
	RequestedCount  any     `json:"requestedCount"`
	GeneratedCount  any     `json:"generatedCount"`
	Shortfall       any     `json:"shortfall"`
	ShortfallReason any     `json:"shortfallReason"`
}

func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := jobResponse{
		JobID:           job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		ResultID:        job.ResultID,
		RequestedCount:  job.Metadata["requestedCount"],
		GeneratedCount:  job.Metadata["generatedCount"],
		Shortfall:       job.Metadata["shortfall"],
		ShortfallReason: job.Metadata["shortfallReason"],
	}
	if job.Error != "" {
		resp.Error = &job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

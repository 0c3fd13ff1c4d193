package handler

import (
	"net/http"

	"github.com/pavelanni/studytool/internal/model"
)

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	questionID, ok := idParam(w, r, "questionID")
	if !ok {
		return
	}
	res, err := h.grading.Override(r.Context(), attemptID, questionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(w, r, "attemptID")
	if !ok {
		return
	}
	if err := h.grading.Delete(r.Context(), attemptID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := idParam(w, r, "questionID")
	if !ok {
		return
	}
	if err := h.grading.DeleteQuestion(r.Context(), questionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateQuestionResponse struct {
	ID      int64 `json:"id"`
	Success bool  `json:"success"`
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := idParam(w, r, "questionID")
	if !ok {
		return
	}
	var u model.QuestionUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	q, err := h.grading.UpdateQuestion(r.Context(), questionID, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateQuestionResponse{ID: q.ID, Success: true})
}

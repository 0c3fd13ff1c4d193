package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/studytool/internal/generate"
	"github.com/pavelanni/studytool/internal/grading"
	appI18n "github.com/pavelanni/studytool/internal/i18n"
	"github.com/pavelanni/studytool/internal/model"
)

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req model.ExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exam, err := h.grading.CreateExam(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.grading.ExamView(r.Context(), exam.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGenerateExam(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.generator.Start(req, credential(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

func (h *Handler) handleExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return
	}
	view, err := h.grading.ExamView(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return
	}
	preview, err := h.grading.Preview(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type startAttemptResponse struct {
	AttemptID     int64               `json:"attemptId"`
	Status        model.AttemptStatus `json:"status"`
	StartedAt     time.Time           `json:"startedAt"`
	ProgressState model.ProgressState `json:"progressState"`
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return
	}
	examType := model.ExamType("")
	if v := r.Header.Get(HeaderExamType); v != "" {
		examType = model.ParseExamType(v)
	}
	a, err := h.grading.Start(r.Context(), examID, examType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startAttemptResponse{
		AttemptID:     a.ID,
		Status:        a.Status,
		StartedAt:     a.StartedAt,
		ProgressState: a.Progress,
	})
}

type inProgressResponse struct {
	Exists bool `json:"exists"`
	*model.ProgressView
}

func (h *Handler) handleInProgress(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return
	}
	view, err := h.grading.InProgress(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inProgressResponse{Exists: view != nil, ProgressView: view})
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(w, r, "examID")
	if !ok {
		return
	}
	var answers []model.SubmittedAnswer
	if !decodeJSON(w, r, &answers) {
		return
	}

	opts := grading.GradeOptions{
		ExamType:   model.ParseExamType(r.Header.Get(HeaderExamType)),
		Credential: credential(r),
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderExamDuration)); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			msg := appI18n.Td(r.Context(), "ErrInvalidParam", map[string]any{"Name": HeaderExamDuration})
			writeBadRequest(w, r, msg, err)
			return
		}
		opts.DurationSeconds = &secs
	}

	report, err := h.grading.Grade(r.Context(), examID, answers, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := idParam(w, r, "uploadID")
	if !ok {
		return
	}
	qs, err := h.grading.UploadQuestions(r.Context(), uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// Package handler exposes the grading service as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/studytool/internal/generate"
	"github.com/pavelanni/studytool/internal/grading"
	appI18n "github.com/pavelanni/studytool/internal/i18n"
	"github.com/pavelanni/studytool/internal/jobs"
)

// Request headers understood by the API.
const (
	HeaderLLMKey       = "X-LLM-API-Key"
	HeaderGeminiKey    = "X-Gemini-API-Key"
	HeaderExamDuration = "X-Exam-Duration"
	HeaderExamType     = "X-Exam-Type"
)

const maxBodyBytes = 4 << 20

// Config holds HTTP-level settings.
type Config struct {
	// AdminPassword protects override and delete endpoints with basic auth
	// when set.
	AdminPassword string
	CORSOrigins   []string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	grading   *grading.Service
	generator *generate.Pipeline
	jobs      *jobs.Manager

	adminHash   []byte
	corsOrigins []string
}

// New creates a new Handler.
func New(svc *grading.Service, pipeline *generate.Pipeline, jm *jobs.Manager, cfg Config) (*Handler, error) {
	h := &Handler{grading: svc, generator: pipeline, jobs: jm, corsOrigins: cfg.CORSOrigins}
	if cfg.AdminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		h.adminHash = hash
	}
	if len(h.corsOrigins) == 0 {
		h.corsOrigins = []string{"*"}
	}
	return h, nil
}

// Router returns the API with its middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type",
			HeaderLLMKey, HeaderGeminiKey, HeaderExamDuration, HeaderExamType},
		MaxAge: 300,
	}))
	r.Use(appI18n.Middleware)
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Post("/exams", h.handleCreateExam)
	r.Post("/exams/generate", h.handleGenerateExam)
	r.Get("/exams/{examID}", h.handleExam)
	r.Get("/exams/{examID}/preview", h.handlePreview)
	r.Post("/exams/{examID}/start-attempt", h.handleStartAttempt)
	r.Get("/exams/{examID}/in-progress-attempt", h.handleInProgress)
	r.Post("/exams/{examID}/grade", h.handleGrade)

	r.Get("/attempts/recent", h.handleRecent)
	r.Get("/attempts/{attemptID}", h.handleReview)
	r.Get("/attempts/{attemptID}/progress", h.handleProgress)
	r.Post("/attempts/{attemptID}/save-progress", h.handleSaveProgress)
	r.Get("/attempts/{attemptID}/validation-status", h.handleValidationStatus)

	r.Get("/uploads/{uploadID}/questions", h.handleUploadQuestions)
	r.Get("/jobs/{jobID}", h.handleJob)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/attempts/{attemptID}/questions/{questionID}/override", h.handleOverride)
		r.Delete("/attempts/{attemptID}", h.handleDeleteAttempt)
		r.Put("/questions/{questionID}", h.handleUpdateQuestion)
		r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError maps err to a status code and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := http.StatusInternalServerError, "ErrInternal"
	switch {
	case errors.Is(err, grading.ErrNotFound):
		status, msgID = http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, jobs.ErrJobNotFound):
		status, msgID = http.StatusNotFound, "ErrJobNotFound"
	case errors.Is(err, grading.ErrInvalidState):
		status, msgID = http.StatusBadRequest, "ErrInvalidState"
	case errors.Is(err, grading.ErrInvalidInput), errors.Is(err, generate.ErrInvalidRequest):
		status, msgID = http.StatusBadRequest, "ErrInvalidInput"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID), Detail: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string, detail error) {
	resp := errorResponse{Error: msg}
	if detail != nil {
		resp.Detail = detail.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, r, appI18n.T(r.Context(), "ErrInvalidBody"), err)
		return false
	}
	return true
}

// idParam parses a positive integer URL parameter, answering 400 on
// failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		msg := appI18n.Td(r.Context(), "ErrInvalidParam", map[string]any{"Name": name})
		writeBadRequest(w, r, msg, nil)
		return 0, false
	}
	return id, true
}

// credential returns the oracle credential sent with the request, if any.
func credential(r *http.Request) string {
	if key := r.Header.Get(HeaderLLMKey); key != "" {
		return key
	}
	return r.Header.Get(HeaderGeminiKey)
}

package model

import "time"

// AttemptsExport is the top-level JSON structure for attempt export.
type AttemptsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Attempts   []AttemptResult `json:"attempts"`
}

// AttemptResult holds one attempt with its answers for export.
type AttemptResult struct {
	AttemptID       int64          `json:"attempt_id"`
	ExamID          int64          `json:"exam_id"`
	Status          AttemptStatus  `json:"status"`
	ExamType        ExamType       `json:"exam_type"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	DurationSeconds *int           `json:"duration_seconds,omitempty"`
	ScorePct        float64        `json:"score_pct"`
	Answers         []AnswerResult `json:"answers"`
}

// AnswerResult holds per-question data for export.
type AnswerResult struct {
	QuestionID    int64        `json:"question_id"`
	Stem          string       `json:"stem"`
	Type          QuestionType `json:"type"`
	CorrectAnswer Value        `json:"correct_answer"`
	Response      Value        `json:"response"`
	Correct       *bool        `json:"correct"`
	AIExplanation *string      `json:"ai_explanation,omitempty"`
}

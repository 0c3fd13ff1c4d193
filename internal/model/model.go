package model

import (
	"encoding/json"
	"time"
)

// QuestionType identifies how an answer is shaped and graded.
type QuestionType string

const (
	TypeMCQ       QuestionType = "mcq"
	TypeMulti     QuestionType = "multi"
	TypeShort     QuestionType = "short"
	TypeTrueFalse QuestionType = "truefalse"
	TypeCloze     QuestionType = "cloze"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeMCQ, TypeMulti, TypeShort, TypeTrueFalse, TypeCloze:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
)

// ExamType distinguishes timed exams from practice runs.
type ExamType string

const (
	ExamTypeExam     ExamType = "exam"
	ExamTypePractice ExamType = "practice"
)

// ParseExamType returns the exam type for s, defaulting to ExamTypeExam.
func ParseExamType(s string) ExamType {
	if ExamType(s) == ExamTypePractice {
		return ExamTypePractice
	}
	return ExamTypeExam
}

// Upload is a named source of questions (an imported file or a generated set).
type Upload struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"fileType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question is a single exam question. Answer holds the canonical value.
type Question struct {
	ID          int64        `json:"id"`
	UploadID    int64        `json:"uploadId"`
	Stem        string       `json:"stem"`
	Type        QuestionType `json:"type"`
	Options     []string     `json:"options,omitempty"`
	Answer      Value        `json:"answer"`
	Explanation string       `json:"explanation,omitempty"`
	Active      bool         `json:"active"`
}

// Exam fixes a question set at creation time.
type Exam struct {
	ID          int64           `json:"id"`
	UploadID    int64           `json:"uploadId"`
	QuestionIDs []int64         `json:"questionIds"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Attempt is one run through an exam's question set.
type Attempt struct {
	ID              int64         `json:"id"`
	ExamID          int64         `json:"examId"`
	Status          AttemptStatus `json:"status"`
	StartedAt       time.Time     `json:"startedAt"`
	FinishedAt      *time.Time    `json:"finishedAt,omitempty"`
	ScorePct        float64       `json:"scorePct"`
	DurationSeconds *int          `json:"durationSeconds,omitempty"`
	ExamType        ExamType      `json:"examType"`
	Progress        ProgressState `json:"progressState"`
}

// AttemptAnswer is the stored response to one question of an attempt.
// Correct is nil while the answer is ungraded or awaiting validation.
type AttemptAnswer struct {
	ID            int64   `json:"id"`
	AttemptID     int64   `json:"attemptId"`
	QuestionID    int64   `json:"questionId"`
	Response      Value   `json:"response"`
	Correct       *bool   `json:"correct"`
	AIExplanation *string `json:"aiExplanation,omitempty"`
}

// TimerState is the client's remaining-timer snapshot.
type TimerState struct {
	RemainingSeconds *int `json:"remainingSeconds,omitempty"`
	Paused           bool `json:"paused,omitempty"`
}

// ProgressState is the checkpoint of an in-progress attempt. After grading
// only QuestionOrder is kept, for review rendering.
type ProgressState struct {
	CurrentIndex       int         `json:"currentQuestionIndex"`
	Timer              *TimerState `json:"timerState,omitempty"`
	Bookmarks          []int64     `json:"bookmarks,omitempty"`
	CompletedQuestions []int64     `json:"completedQuestions,omitempty"`
	QuestionOrder      []int64     `json:"questionOrder,omitempty"`
	ExamType           ExamType    `json:"examType,omitempty"`
	LastSavedAt        *time.Time  `json:"lastSavedAt,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

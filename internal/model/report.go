package model

import "time"

// SubmittedAnswer is one item of a grading request.
type SubmittedAnswer struct {
	QuestionID int64 `json:"questionId"`
	Response   Value `json:"response"`
}

// GradeItem is the per-question outcome reported to the client.
// Correct is nil while the answer is pending validation.
type GradeItem struct {
	QuestionID    int64        `json:"questionId"`
	Type          QuestionType `json:"type"`
	Correct       *bool        `json:"correct"`
	Pending       bool         `json:"pending"`
	Confidence    float64      `json:"confidence"`
	CorrectAnswer Value        `json:"correctAnswer"`
	UserAnswer    Value        `json:"userAnswer"`
}

// GradeReport is returned synchronously by grading.
type GradeReport struct {
	AttemptID            int64       `json:"attemptId"`
	ScorePct             float64     `json:"scorePct"`
	PerQuestion          []GradeItem `json:"perQuestion"`
	PendingCount         int         `json:"pendingCount"`
	EstimatedWaitSeconds int         `json:"estimatedWaitSeconds"`
}

// ValidatedQuestion is a resolved answer in a validation-status poll.
type ValidatedQuestion struct {
	QuestionID    int64 `json:"questionId"`
	Correct       bool  `json:"correct"`
	CorrectAnswer Value `json:"correctAnswer"`
	UserAnswer    Value `json:"userAnswer"`
}

// ValidationStatus reports async validation progress for an attempt.
type ValidationStatus struct {
	AttemptID          int64               `json:"attemptId"`
	PendingCount       int                 `json:"pendingCount"`
	AllComplete        bool                `json:"allComplete"`
	CurrentScore       float64             `json:"currentScore"`
	ValidatedQuestions []ValidatedQuestion `json:"validatedQuestions"`
}

// ProgressUpdate is the body of a save-progress call.
type ProgressUpdate struct {
	Answers              map[int64]Value `json:"answers"`
	Bookmarks            []int64         `json:"bookmarks"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	TimerState           *TimerState     `json:"timerState"`
	ExamType             string          `json:"examType"`
	CompletedQuestions   []int64         `json:"completedQuestions"`
	QuestionOrder        []int64         `json:"questionOrder"`
}

// QuestionUpdate is the body of a question edit. Nil fields are left
// unchanged.
type QuestionUpdate struct {
	Stem          *string   `json:"stem"`
	Options       *[]string `json:"options"`
	CorrectAnswer *Value    `json:"correctAnswer"`
	Explanation   *string   `json:"explanation"`
}

// ProgressView is an attempt together with its saved answers.
type ProgressView struct {
	AttemptID     int64           `json:"attemptId"`
	ExamID        int64           `json:"examId"`
	Status        AttemptStatus   `json:"status"`
	StartedAt     time.Time       `json:"startedAt"`
	ProgressState ProgressState   `json:"progressState"`
	SavedAnswers  map[int64]Value `json:"savedAnswers"`
}

// OverrideResult is returned by a manual grade override.
type OverrideResult struct {
	Success     bool    `json:"success"`
	NewStatus   bool    `json:"newStatus"`
	NewScorePct float64 `json:"newScorePct"`
}

// QuestionReview is one question of an attempt review.
type QuestionReview struct {
	Question      QuestionView `json:"question"`
	UserAnswer    Value        `json:"userAnswer"`
	CorrectAnswer Value        `json:"correctAnswer"`
	IsCorrect     *bool        `json:"isCorrect"`
	AIExplanation *string      `json:"aiExplanation,omitempty"`
}

// AttemptReview is the full review of a graded attempt.
type AttemptReview struct {
	ID         int64            `json:"id"`
	ExamID     int64            `json:"examId"`
	Status     AttemptStatus    `json:"status"`
	ScorePct   float64          `json:"scorePct"`
	ExamType   ExamType         `json:"examType"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Questions  []QuestionReview `json:"questions"`
}

// QuestionView is a question without its answer, as served to takers.
type QuestionView struct {
	ID      int64        `json:"id"`
	Stem    string       `json:"stem"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// View strips the answer from q.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Stem: q.Stem, Type: q.Type, Options: q.Options}
}

// ExamView is an exam with its questions in exam order.
type ExamView struct {
	ExamID    int64          `json:"examId"`
	Questions []QuestionView `json:"questions"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Stem        string       `json:"stem"`
	Type        QuestionType `json:"type"`
	Options     []string     `json:"options,omitempty"`
	Answer      Value        `json:"answer"`
	Explanation string       `json:"explanation,omitempty"`
}

// AnswerCheck is the context handed to the oracle for a semantic check or
// an explanation of one answer.
type AnswerCheck struct {
	QuestionID    int64
	Stem          string
	Type          QuestionType
	Options       []string
	UserAnswer    Value
	CorrectAnswer Value
}

// ExamRequest asks for a new exam drawn from one or more uploads.
type ExamRequest struct {
	UploadID      int64          `json:"uploadId,omitempty"`
	UploadIDs     []int64        `json:"uploadIds,omitempty"`
	Count         int            `json:"count"`
	QuestionTypes []QuestionType `json:"questionTypes,omitempty"`
}

// AnswerPreview is the canonical answer of one exam question.
type AnswerPreview struct {
	QuestionID    int64 `json:"questionId"`
	CorrectAnswer Value `json:"correctAnswer"`
}

// ExamPreview lists the canonical answers of an exam.
type ExamPreview struct {
	Answers []AnswerPreview `json:"answers"`
}

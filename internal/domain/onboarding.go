package domain

import "time"

// QuestionType is the answer shape an onboarding question expects.
type QuestionType string

const (
	QuestionBoolean QuestionType = "boolean"
	QuestionChoice  QuestionType = "choice"
	QuestionText    QuestionType = "text"
)

// OnboardingQuestion is catalog data, not per-user. Loaded from the embedded
// CSV seed and cached in the question catalog.
type OnboardingQuestion struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Options    []string     `json:"options,omitempty"`

	// RequirementID links the question to a formalization requirement,
	// SetsFlag to the profile flag it populates, AffectsTask to the task
	// code it gates. All optional.
	RequirementID string      `json:"requirement_id,omitempty"`
	SetsFlag      ProfileFlag `json:"sets_flag,omitempty"`
	AffectsTask   TaskCode    `json:"affects_task,omitempty"`

	Step       int `json:"step"`
	OrderIndex int `json:"order_index"`
}

// OnboardingAnswer is one row per (user, question), upserted on resubmission.
// Value holds the raw answer encoded as a string; booleans are "true"/"false"
// and lists are comma-joined.
type OnboardingAnswer struct {
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Value      string    `json:"value"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SaveAnswerRequest is the body of POST /v1/onboarding/answers.
type SaveAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// OnboardingStatus summarizes questionnaire progress.
type OnboardingStatus struct {
	TotalQuestions  int                 `json:"total_questions"`
	Answered        int                 `json:"answered"`
	ProgressPercent int                 `json:"progress_percent"`
	Complete        bool                `json:"complete"`
	NextQuestion    *OnboardingQuestion `json:"next_question,omitempty"`
}

// OnboardingSummary pairs each answered question with its raw value.
type OnboardingSummary struct {
	UserID  string                  `json:"user_id"`
	Answers []OnboardingSummaryItem `json:"answers"`
}

// OnboardingSummaryItem is one question/answer pair in the summary.
type OnboardingSummaryItem struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Value      string `json:"value"`
}

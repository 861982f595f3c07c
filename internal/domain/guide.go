package domain

import "time"

// ConfidenceLevel qualifies how much the generated guide can be trusted.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// GuideStep is one numbered step of a formalization guide.
type GuideStep struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FormalizationGuide is a per-(user, requirement) document explaining how to
// obtain one formalization requirement. Generated by the LLM; replaced by a
// deterministic template when generation or parsing fails.
type FormalizationGuide struct {
	UserID            string          `json:"user_id"`
	RequirementID     string          `json:"requirement_id"`
	Summary           string          `json:"summary"`
	Steps             []GuideStep     `json:"steps"`
	EstimatedTimeDays int             `json:"estimated_time_days"`
	WhereToGo         string          `json:"where_to_go"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	Fallback          bool            `json:"fallback"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// GenerateGuideRequest is the body of POST /v1/ai/guides.
type GenerateGuideRequest struct {
	RequirementID   string `json:"requirement_id"`
	ForceRegenerate bool   `json:"force_regenerate,omitempty"`
}

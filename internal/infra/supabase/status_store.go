package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Cached eligibility diagnosis
// table: formalization_status (key: user_id)
// ============================================================

type statusRow struct {
	UserID           string `json:"user_id"`
	IsEligible       bool   `json:"is_eligible"`
	EligibilityLevel string `json:"eligibility_level"`
	Score            int    `json:"score"`
	RequirementsMet  string `json:"requirements_met"`     // pipe-separated
	RequirementsMiss string `json:"requirements_missing"` // pipe-separated
	Recommendations  string `json:"recommendations"`      // pipe-separated
	DiagnosedAt      string `json:"diagnosed_at"`
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "|")
}

func (r *statusRow) toDomain() domain.FormalizationStatus {
	st := domain.FormalizationStatus{
		UserID:              r.UserID,
		IsEligible:          r.IsEligible,
		EligibilityLevel:    domain.EligibilityLevel(r.EligibilityLevel),
		Score:               r.Score,
		RequirementsMet:     splitList(r.RequirementsMet),
		RequirementsMissing: splitList(r.RequirementsMiss),
		Recommendations:     splitList(r.Recommendations),
	}
	st.DiagnosedAt, _ = time.Parse(time.RFC3339, r.DiagnosedAt)
	return st
}

// GetStatus returns the cached diagnosis, or ErrNotFound when none is stored.
func (c *Client) GetStatus(ctx context.Context, userID string) (*domain.FormalizationStatus, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("formalization_status?user_id=eq.%s", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/status", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "formalization_status", ID: userID}
	}

	var rows []statusRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "formalization_status", ID: userID}
	}

	st := rows[0].toDomain()
	return &st, nil
}

// UpsertStatus replaces the cached diagnosis for the user.
func (c *Client) UpsertStatus(ctx context.Context, st *domain.FormalizationStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", st.UserID))

	data := map[string]any{
		"user_id":              st.UserID,
		"is_eligible":          st.IsEligible,
		"eligibility_level":    string(st.EligibilityLevel),
		"score":                st.Score,
		"requirements_met":     strings.Join(st.RequirementsMet, "|"),
		"requirements_missing": strings.Join(st.RequirementsMissing, "|"),
		"recommendations":      strings.Join(st.Recommendations, "|"),
		"diagnosed_at":         st.DiagnosedAt.Format(time.RFC3339),
	}
	if _, err := c.doUpsert(ctx, "formalization_status", "user_id", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/status", Err: err}
	}
	return nil
}

// DeleteStatus drops the cached diagnosis so the next read recalculates.
func (c *Client) DeleteStatus(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("formalization_status?user_id=eq.%s", userID)
	if err := c.doDelete(ctx, path); err != nil {
		return &domain.ErrExternalService{Service: "supabase/status", Err: err}
	}
	return nil
}

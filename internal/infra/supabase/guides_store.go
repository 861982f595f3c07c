package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Generated formalization guides
// table: formalization_guides (key: user_id,requirement_id)
// ============================================================

type guideRow struct {
	UserID            string `json:"user_id"`
	RequirementID     string `json:"requirement_id"`
	Summary           string `json:"summary"`
	Steps             string `json:"steps"` // JSON array of steps
	EstimatedTimeDays int    `json:"estimated_time_days"`
	WhereToGo         string `json:"where_to_go"`
	ConfidenceLevel   string `json:"confidence_level"`
	Fallback          bool   `json:"fallback"`
	GeneratedAt       string `json:"generated_at"`
}

func (r *guideRow) toDomain() (*domain.FormalizationGuide, error) {
	g := &domain.FormalizationGuide{
		UserID:            r.UserID,
		RequirementID:     r.RequirementID,
		Summary:           r.Summary,
		EstimatedTimeDays: r.EstimatedTimeDays,
		WhereToGo:         r.WhereToGo,
		ConfidenceLevel:   domain.ConfidenceLevel(r.ConfidenceLevel),
		Fallback:          r.Fallback,
	}
	if r.Steps != "" {
		if err := json.Unmarshal([]byte(r.Steps), &g.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode guide steps: %w", err)
		}
	}
	g.GeneratedAt, _ = time.Parse(time.RFC3339, r.GeneratedAt)
	return g, nil
}

// GetGuide returns the stored guide for (user, requirement), or ErrNotFound.
func (c *Client) GetGuide(ctx context.Context, userID, requirementID string) (*domain.FormalizationGuide, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGuide")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("requirement.id", requirementID),
	)

	path := fmt.Sprintf("formalization_guides?user_id=eq.%s&requirement_id=eq.%s", userID, requirementID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/guides", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "formalization_guide", ID: requirementID}
	}

	var rows []guideRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode guide: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "formalization_guide", ID: requirementID}
	}
	return rows[0].toDomain()
}

// UpsertGuide stores or replaces the guide for (user, requirement).
func (c *Client) UpsertGuide(ctx context.Context, g *domain.FormalizationGuide) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertGuide")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", g.UserID),
		attribute.String("requirement.id", g.RequirementID),
	)

	steps, err := json.Marshal(g.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode guide steps: %w", err)
	}
	data := map[string]any{
		"user_id":             g.UserID,
		"requirement_id":      g.RequirementID,
		"summary":             g.Summary,
		"steps":               string(steps),
		"estimated_time_days": g.EstimatedTimeDays,
		"where_to_go":         g.WhereToGo,
		"confidence_level":    string(g.ConfidenceLevel),
		"fallback":            g.Fallback,
		"generated_at":        g.GeneratedAt.Format(time.RFC3339),
	}
	if _, err := c.doUpsert(ctx, "formalization_guides", "user_id,requirement_id", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/guides", Err: err}
	}
	return nil
}

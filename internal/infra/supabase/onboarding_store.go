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
// Onboarding catalog + answers
// tables: onboarding_questions (key: question_id),
//         onboarding_answers (key: user_id,question_id)
// ============================================================

type questionRow struct {
	QuestionID    string `json:"question_id"`
	Text          string `json:"text"`
	Type          string `json:"type"`
	Options       string `json:"options"` // pipe-separated
	RequirementID string `json:"requirement_id"`
	SetsFlag      string `json:"sets_flag"`
	AffectsTask   string `json:"affects_task"`
	Step          int    `json:"step"`
	OrderIndex    int    `json:"order_index"`
}

func (r *questionRow) toDomain() domain.OnboardingQuestion {
	q := domain.OnboardingQuestion{
		QuestionID:    r.QuestionID,
		Text:          r.Text,
		Type:          domain.QuestionType(r.Type),
		RequirementID: r.RequirementID,
		SetsFlag:      domain.ProfileFlag(r.SetsFlag),
		AffectsTask:   domain.TaskCode(r.AffectsTask),
		Step:          r.Step,
		OrderIndex:    r.OrderIndex,
	}
	if r.Options != "" {
		q.Options = strings.Split(r.Options, "|")
	}
	return q
}

// ListQuestions returns the full question catalog in display order.
func (c *Client) ListQuestions(ctx context.Context) ([]domain.OnboardingQuestion, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListQuestions")
	defer span.End()

	body, err := c.getWithRetry(ctx, "onboarding_questions?order=order_index.asc")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/questions", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []domain.OnboardingQuestion{}, nil
	}

	var rows []questionRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	questions := make([]domain.OnboardingQuestion, 0, len(rows))
	for i := range rows {
		questions = append(questions, rows[i].toDomain())
	}
	return questions, nil
}

// UpsertQuestion inserts or merges a catalog question (used by the seeder).
func (c *Client) UpsertQuestion(ctx context.Context, q *domain.OnboardingQuestion) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertQuestion")
	defer span.End()

	data := map[string]any{
		"question_id":    q.QuestionID,
		"text":           q.Text,
		"type":           string(q.Type),
		"options":        strings.Join(q.Options, "|"),
		"requirement_id": q.RequirementID,
		"sets_flag":      string(q.SetsFlag),
		"affects_task":   string(q.AffectsTask),
		"step":           q.Step,
		"order_index":    q.OrderIndex,
	}
	if _, err := c.doUpsert(ctx, "onboarding_questions", "question_id", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/questions", Err: err}
	}
	return nil
}

type answerRow struct {
	UserID     string `json:"user_id"`
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
	AnsweredAt string `json:"answered_at"`
}

// ListAnswers returns all answers stored for a user.
func (c *Client) ListAnswers(ctx context.Context, userID string) ([]domain.OnboardingAnswer, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAnswers")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("onboarding_answers?user_id=eq.%s", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/answers", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []domain.OnboardingAnswer{}, nil
	}

	var rows []answerRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}

	answers := make([]domain.OnboardingAnswer, 0, len(rows))
	for _, r := range rows {
		a := domain.OnboardingAnswer{
			UserID:     r.UserID,
			QuestionID: r.QuestionID,
			Value:      r.Value,
		}
		a.AnsweredAt, _ = time.Parse(time.RFC3339, r.AnsweredAt)
		answers = append(answers, a)
	}
	return answers, nil
}

// UpsertAnswer inserts or replaces the answer for (user, question).
func (c *Client) UpsertAnswer(ctx context.Context, ans *domain.OnboardingAnswer) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAnswer")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", ans.UserID),
		attribute.String("question.id", ans.QuestionID),
	)

	data := map[string]any{
		"user_id":     ans.UserID,
		"question_id": ans.QuestionID,
		"value":       ans.Value,
		"answered_at": time.Now().Format(time.RFC3339),
	}
	if _, err := c.doUpsert(ctx, "onboarding_answers", "user_id,question_id", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/answers", Err: err}
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var onboardingTracer = otel.Tracer("service/onboarding")

// OnboardingService runs the questionnaire: serves questions from the
// catalog, stores answers and propagates them into the producer profile so
// both sources converge.
type OnboardingService struct {
	answers  port.AnswerStore
	profiles port.ProfileStore
	catalog  *catalog.Catalog
	logger   *zap.Logger
}

// NewOnboardingService creates the onboarding service.
func NewOnboardingService(
	answers port.AnswerStore,
	profiles port.ProfileStore,
	cat *catalog.Catalog,
	logger *zap.Logger,
) *OnboardingService {
	return &OnboardingService{
		answers:  answers,
		profiles: profiles,
		catalog:  cat,
		logger:   logger,
	}
}

// ListQuestions returns the questionnaire in display order.
func (s *OnboardingService) ListQuestions(ctx context.Context) ([]domain.OnboardingQuestion, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.ListQuestions")
	defer span.End()

	return s.catalog.Questions(ctx)
}

// SaveAnswer validates and stores one answer, then propagates it into the
// producer profile.
func (s *OnboardingService) SaveAnswer(ctx context.Context, userID string, req *domain.SaveAnswerRequest) (*domain.OnboardingAnswer, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.SaveAnswer")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("question.id", req.QuestionID),
	)

	question, err := s.findQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, &domain.ErrNotFound{Resource: "question", ID: req.QuestionID}
	}

	value, err := encodeAnswerValue(question, req.Value)
	if err != nil {
		return nil, err
	}

	answer := &domain.OnboardingAnswer{
		UserID:     userID,
		QuestionID: question.QuestionID,
		Value:      value,
	}
	if err := s.answers.UpsertAnswer(ctx, answer); err != nil {
		return nil, err
	}

	s.propagateToProfile(ctx, userID, question, value)
	return answer, nil
}

// GetStatus reports questionnaire progress. The CNPJ question only counts
// for formal producers; everyone else sees it excluded from the totals.
func (s *OnboardingService) GetStatus(ctx context.Context, userID string) (*domain.OnboardingStatus, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.GetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	questions, err := s.applicableQuestions(ctx, userID)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.ListAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}

	status := &domain.OnboardingStatus{TotalQuestions: len(questions)}
	for i := range questions {
		if answered[questions[i].QuestionID] {
			status.Answered++
		} else if status.NextQuestion == nil {
			status.NextQuestion = &questions[i]
		}
	}
	if status.TotalQuestions > 0 {
		status.ProgressPercent = 100 * status.Answered / status.TotalQuestions
	}
	status.Complete = status.Answered >= status.TotalQuestions
	return status, nil
}

// GetSummary pairs every stored answer with its question text.
func (s *OnboardingService) GetSummary(ctx context.Context, userID string) (*domain.OnboardingSummary, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.GetSummary")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	questions, err := s.catalog.Questions(ctx)
	if err != nil {
		return nil, err
	}
	textByID := make(map[string]string, len(questions))
	for _, q := range questions {
		textByID[q.QuestionID] = q.Text
	}

	answers, err := s.answers.ListAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &domain.OnboardingSummary{
		UserID:  userID,
		Answers: make([]domain.OnboardingSummaryItem, 0, len(answers)),
	}
	for _, a := range answers {
		summary.Answers = append(summary.Answers, domain.OnboardingSummaryItem{
			QuestionID: a.QuestionID,
			Question:   textByID[a.QuestionID],
			Value:      a.Value,
		})
	}
	return summary, nil
}

// applicableQuestions filters the catalog down to the questions that apply
// to this user. Only formal producers answer the CNPJ question.
func (s *OnboardingService) applicableQuestions(ctx context.Context, userID string) ([]domain.OnboardingQuestion, error) {
	questions, err := s.catalog.Questions(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		profile = nil
	}
	if profile != nil && profile.ProducerType == domain.ProducerFormal {
		return questions, nil
	}

	filtered := make([]domain.OnboardingQuestion, 0, len(questions))
	for _, q := range questions {
		if q.SetsFlag == domain.FlagHasCNPJ {
			continue
		}
		filtered = append(filtered, q)
	}
	return filtered, nil
}

func (s *OnboardingService) findQuestion(ctx context.Context, questionID string) (*domain.OnboardingQuestion, error) {
	questions, err := s.catalog.Questions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].QuestionID == questionID {
			return &questions[i], nil
		}
	}
	return nil, nil
}

// encodeAnswerValue normalizes the raw JSON value into the stored string
// encoding: booleans become "true"/"false", lists comma-joined, choices
// must match one of the declared options.
func encodeAnswerValue(q *domain.OnboardingQuestion, raw any) (string, error) {
	switch q.Type {
	case domain.QuestionBoolean:
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			lower := strings.ToLower(strings.TrimSpace(v))
			if lower == "true" || lower == "sim" || lower == "yes" || lower == "1" {
				return "true", nil
			}
			if lower == "false" || lower == "não" || lower == "nao" || lower == "no" || lower == "0" {
				return "false", nil
			}
		}
		return "", &domain.ErrValidation{Field: q.QuestionID, Message: "expected a boolean answer"}

	case domain.QuestionChoice:
		v, ok := raw.(string)
		if !ok || v == "" {
			return "", &domain.ErrValidation{Field: q.QuestionID, Message: "expected one of the listed options"}
		}
		for _, opt := range q.Options {
			if opt == v {
				return v, nil
			}
		}
		return "", &domain.ErrValidation{
			Field:   q.QuestionID,
			Message: fmt.Sprintf("%q is not one of the listed options", v),
		}

	default:
		switch v := raw.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return "", &domain.ErrValidation{Field: q.QuestionID, Message: "answer must not be empty"}
			}
			return v, nil
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return "", &domain.ErrValidation{Field: q.QuestionID, Message: "list answers must contain only strings"}
				}
				parts = append(parts, s)
			}
			return strings.Join(parts, ","), nil
		}
		return "", &domain.ErrValidation{Field: q.QuestionID, Message: "expected a text answer"}
	}
}

// propagateToProfile copies the answer into the producer profile. The
// profile stays the authoritative echo of the questionnaire; write failures
// are logged, not returned.
func (s *OnboardingService) propagateToProfile(ctx context.Context, userID string, q *domain.OnboardingQuestion, value string) {
	updates := map[string]any{}

	if q.SetsFlag != "" {
		updates[string(q.SetsFlag)] = value == "true"
	}

	switch q.QuestionID {
	case "producer_type":
		updates["producer_type"] = string(domain.ParseProducerType(value))
	case "name":
		updates["name"] = value
	case "address":
		updates["address"] = value
	case "city":
		updates["city"] = value
	case "state":
		updates["state"] = value
	case "production_type":
		updates["production_type"] = value
	case "main_products":
		updates["main_products"] = value
	case "production_capacity":
		updates["production_capacity"] = value
	}

	if len(updates) == 0 {
		return
	}

	if err := s.ensureProfile(ctx, userID); err != nil {
		s.logger.Warn("failed to ensure profile before propagation",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	if err := s.profiles.UpdateProfileFields(ctx, userID, updates); err != nil {
		s.logger.Warn("failed to propagate answer to profile",
			zap.String("user_id", userID),
			zap.String("question_id", q.QuestionID),
			zap.Error(err),
		)
	}
}

// ensureProfile creates an empty profile row when the user has none yet,
// so field patches have a row to land on.
func (s *OnboardingService) ensureProfile(ctx context.Context, userID string) error {
	_, err := s.profiles.GetProfile(ctx, userID)
	if err == nil {
		return nil
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return err
	}
	_, err = s.profiles.UpsertProfile(ctx, &domain.ProducerProfile{
		UserID:       userID,
		ProducerType: domain.ProducerIndividual,
		HasCPF:       true,
	})
	return err
}

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/cache"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"go.uber.org/zap"
)

func onboardingCatalog() *catalog.Catalog {
	questions := &mockQuestionStore{questions: []domain.OnboardingQuestion{
		{QuestionID: "name", Text: "Qual é o seu nome?", Type: domain.QuestionText, Step: 1, OrderIndex: 1},
		{
			QuestionID: "producer_type",
			Text:       "Como você produz?",
			Type:       domain.QuestionChoice,
			Options:    []string{"Individual", "Grupo Informal", "Formal (CNPJ)"},
			Step:       1, OrderIndex: 2,
		},
		{
			QuestionID:    "has_dap_caf",
			Text:          "Você tem DAP ou CAF?",
			Type:          domain.QuestionBoolean,
			RequirementID: "dap_caf",
			SetsFlag:      domain.FlagHasDAPCAF,
			AffectsTask:   domain.TaskHasFamilyFarmerRegistration,
			Step:          2, OrderIndex: 3,
		},
		{
			QuestionID:    "has_cnpj",
			Text:          "O grupo tem CNPJ?",
			Type:          domain.QuestionBoolean,
			RequirementID: "cnpj",
			SetsFlag:      domain.FlagHasCNPJ,
			Step:          2, OrderIndex: 4,
		},
	}}
	return catalog.New(
		questions,
		&mockCatalogStore{},
		cache.New[[]domain.OnboardingQuestion](time.Minute),
		cache.New[[]domain.TaskCatalogEntry](time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func newOnboardingService(answers *mockAnswerStore, profiles *mockProfileStore) *service.OnboardingService {
	return service.NewOnboardingService(answers, profiles, onboardingCatalog(), zap.NewNop())
}

func TestSaveAnswer_UnknownQuestion(t *testing.T) {
	svc := newOnboardingService(&mockAnswerStore{}, &mockProfileStore{})

	_, err := svc.SaveAnswer(context.Background(), "user-1", &domain.SaveAnswerRequest{
		QuestionID: "favorite_color",
		Value:      "azul",
	})
	if err == nil {
		t.Fatal("expected not found for unknown question")
	}
}

func TestSaveAnswer_BooleanPropagatesFlag(t *testing.T) {
	answers := &mockAnswerStore{}
	profiles := &mockProfileStore{}
	svc := newOnboardingService(answers, profiles)

	ans, err := svc.SaveAnswer(context.Background(), "user-1", &domain.SaveAnswerRequest{
		QuestionID: "has_dap_caf",
		Value:      true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ans.Value != "true" {
		t.Errorf("expected stored value 'true', got %q", ans.Value)
	}

	if profiles.profile == nil {
		t.Fatal("expected a profile to be created lazily")
	}
	if !profiles.profile.HasDAPCAF {
		t.Error("expected has_dap_caf flag propagated to the profile")
	}
}

func TestSaveAnswer_PortugueseBoolean(t *testing.T) {
	svc := newOnboardingService(&mockAnswerStore{}, &mockProfileStore{})

	ans, err := svc.SaveAnswer(context.Background(), "user-1", &domain.SaveAnswerRequest{
		QuestionID: "has_dap_caf",
		Value:      "sim",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ans.Value != "true" {
		t.Errorf("'sim' should normalize to 'true', got %q", ans.Value)
	}
}

func TestSaveAnswer_ChoiceMustMatchOption(t *testing.T) {
	svc := newOnboardingService(&mockAnswerStore{}, &mockProfileStore{})

	_, err := svc.SaveAnswer(context.Background(), "user-1", &domain.SaveAnswerRequest{
		QuestionID: "producer_type",
		Value:      "Cooperativa Gigante",
	})
	if err == nil {
		t.Fatal("expected validation error for unlisted option")
	}
}

func TestSaveAnswer_ProducerTypePropagates(t *testing.T) {
	profiles := &mockProfileStore{}
	svc := newOnboardingService(&mockAnswerStore{}, profiles)

	if _, err := svc.SaveAnswer(context.Background(), "user-1", &domain.SaveAnswerRequest{
		QuestionID: "producer_type",
		Value:      "Grupo Informal",
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if profiles.profile.ProducerType != domain.ProducerInformal {
		t.Errorf("expected informal, got %s", profiles.profile.ProducerType)
	}
}

func TestSaveAnswer_Resubmission(t *testing.T) {
	answers := &mockAnswerStore{}
	svc := newOnboardingService(answers, &mockProfileStore{})

	ctx := context.Background()
	if _, err := svc.SaveAnswer(ctx, "user-1", &domain.SaveAnswerRequest{QuestionID: "has_dap_caf", Value: false}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := svc.SaveAnswer(ctx, "user-1", &domain.SaveAnswerRequest{QuestionID: "has_dap_caf", Value: true}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	if len(answers.answers) != 1 {
		t.Fatalf("resubmission must upsert, got %d rows", len(answers.answers))
	}
	if answers.answers[0].Value != "true" {
		t.Errorf("expected latest value 'true', got %q", answers.answers[0].Value)
	}
}

func TestGetStatus_ExcludesCNPJForNonFormal(t *testing.T) {
	svc := newOnboardingService(&mockAnswerStore{}, &mockProfileStore{})

	status, err := svc.GetStatus(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 4 catalog questions minus the CNPJ one.
	if status.TotalQuestions != 3 {
		t.Errorf("expected 3 applicable questions, got %d", status.TotalQuestions)
	}
	if status.Complete {
		t.Error("nothing answered yet")
	}
	if status.NextQuestion == nil || status.NextQuestion.QuestionID != "name" {
		t.Errorf("expected first unanswered question 'name', got %+v", status.NextQuestion)
	}
}

func TestGetStatus_IncludesCNPJForFormal(t *testing.T) {
	profiles := &mockProfileStore{profile: &domain.ProducerProfile{
		UserID:       "user-1",
		ProducerType: domain.ProducerFormal,
	}}
	svc := newOnboardingService(&mockAnswerStore{}, profiles)

	status, err := svc.GetStatus(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.TotalQuestions != 4 {
		t.Errorf("formal producers answer all 4 questions, got %d", status.TotalQuestions)
	}
}

func TestGetStatus_Progress(t *testing.T) {
	answers := &mockAnswerStore{answers: []domain.OnboardingAnswer{
		{UserID: "user-1", QuestionID: "name", Value: "Maria"},
		{UserID: "user-1", QuestionID: "producer_type", Value: "individual"},
		{UserID: "user-1", QuestionID: "has_dap_caf", Value: "true"},
	}}
	svc := newOnboardingService(answers, &mockProfileStore{})

	status, err := svc.GetStatus(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !status.Complete {
		t.Error("all applicable questions answered, expected complete")
	}
	if status.ProgressPercent != 100 {
		t.Errorf("expected 100%%, got %d", status.ProgressPercent)
	}
}

func TestGetSummary(t *testing.T) {
	answers := &mockAnswerStore{answers: []domain.OnboardingAnswer{
		{UserID: "user-1", QuestionID: "name", Value: "Maria"},
		{UserID: "user-1", QuestionID: "has_dap_caf", Value: "true"},
	}}
	svc := newOnboardingService(answers, &mockProfileStore{})

	summary, err := svc.GetSummary(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(summary.Answers) != 2 {
		t.Fatalf("expected 2 items, got %d", len(summary.Answers))
	}
	if summary.Answers[0].Question == "" {
		t.Error("summary items must carry the question text")
	}
}

// --- Producer profile ---

func TestUpsertProfile_Validation(t *testing.T) {
	svc := service.NewProducerService(&mockProfileStore{}, zap.NewNop())

	if _, err := svc.UpsertProfile(context.Background(), "user-1",
		&domain.UpsertProfileRequest{}); err == nil {
		t.Error("expected error for missing name")
	}

	if _, err := svc.UpsertProfile(context.Background(), "user-1",
		&domain.UpsertProfileRequest{Name: "Coop", ProducerType: "formal"}); err == nil {
		t.Error("formal producers without CNPJ must be rejected")
	}

	if _, err := svc.UpsertProfile(context.Background(), "user-1",
		&domain.UpsertProfileRequest{Name: "Maria", ProducerType: "gigante"}); err == nil {
		t.Error("unknown producer type must be rejected")
	}
}

func TestUpsertProfile_PreservesOnboardingFlags(t *testing.T) {
	profiles := &mockProfileStore{profile: &domain.ProducerProfile{
		UserID:           "user-1",
		Name:             "Maria",
		ProducerType:     domain.ProducerIndividual,
		HasCPF:           true,
		HasDAPCAF:        true,
		HasPreviousSales: true,
	}}
	svc := service.NewProducerService(profiles, zap.NewNop())

	saved, err := svc.UpsertProfile(context.Background(), "user-1", &domain.UpsertProfileRequest{
		Name:         "Maria da Silva",
		ProducerType: "Individual",
		City:         "Petrolina",
		State:        "PE",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if saved.Name != "Maria da Silva" {
		t.Errorf("expected updated name, got %s", saved.Name)
	}
	if !saved.HasDAPCAF || !saved.HasPreviousSales {
		t.Error("onboarding flags must survive a profile edit")
	}
}

func TestUpsertProfile_FormalWithCNPJ(t *testing.T) {
	profiles := &mockProfileStore{}
	svc := service.NewProducerService(profiles, zap.NewNop())

	saved, err := svc.UpsertProfile(context.Background(), "user-1", &domain.UpsertProfileRequest{
		Name:         "Cooperativa do Vale",
		ProducerType: "Formal (CNPJ)",
		CNPJ:         "12.345.678/0001-90",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved.ProducerType != domain.ProducerFormal {
		t.Errorf("expected formal, got %s", saved.ProducerType)
	}
	if !saved.HasCNPJ {
		t.Error("informing a CNPJ must set has_cnpj")
	}
}

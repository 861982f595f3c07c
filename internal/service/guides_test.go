package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"go.uber.org/zap"
)

type mockGuideStore struct {
	guides map[string]*domain.FormalizationGuide // keyed by userID+requirementID
}

func newMockGuideStore() *mockGuideStore {
	return &mockGuideStore{guides: map[string]*domain.FormalizationGuide{}}
}

func (m *mockGuideStore) GetGuide(_ context.Context, userID, requirementID string) (*domain.FormalizationGuide, error) {
	g, ok := m.guides[userID+"/"+requirementID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "formalization_guide", ID: requirementID}
	}
	return g, nil
}

func (m *mockGuideStore) UpsertGuide(_ context.Context, guide *domain.FormalizationGuide) error {
	m.guides[guide.UserID+"/"+guide.RequirementID] = guide
	return nil
}

type mockGenerator struct {
	response string
	err      error
	calls    int
}

func (m *mockGenerator) Generate(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.response, m.err
}

const validGuideJSON = `{
	"summary": "Como emitir a CAF no sindicato rural.",
	"steps": [
		{"number": 1, "title": "Separe os documentos", "description": "CPF e comprovante de endereço."},
		{"number": 2, "title": "Vá ao sindicato", "description": "Peça a emissão da CAF."}
	],
	"estimated_time_days": 15,
	"where_to_go": "Sindicato rural",
	"confidence_level": "high"
}`

func newGuideService(store *mockGuideStore, gen *mockGenerator) *service.GuideService {
	return service.NewGuideService(
		store,
		&mockTaskStore{},
		gen,
		nil,
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func TestGenerateGuide_FromLLM(t *testing.T) {
	store := newMockGuideStore()
	gen := &mockGenerator{response: validGuideJSON}
	svc := newGuideService(store, gen)

	guide, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "dap_caf"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if guide.Fallback {
		t.Error("valid LLM output must not be flagged as fallback")
	}
	if guide.ConfidenceLevel != domain.ConfidenceHigh {
		t.Errorf("expected high confidence, got %s", guide.ConfidenceLevel)
	}
	if len(guide.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(guide.Steps))
	}
	if guide.UserID != "user-1" || guide.RequirementID != "dap_caf" {
		t.Errorf("guide identity not set: %s/%s", guide.UserID, guide.RequirementID)
	}
}

func TestGenerateGuide_CachedOnSecondCall(t *testing.T) {
	store := newMockGuideStore()
	gen := &mockGenerator{response: validGuideJSON}
	svc := newGuideService(store, gen)

	req := &domain.GenerateGuideRequest{RequirementID: "dap_caf"}
	if _, err := svc.GenerateGuide(context.Background(), "user-1", req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.GenerateGuide(context.Background(), "user-1", req); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if gen.calls != 1 {
		t.Errorf("expected a single LLM call, got %d", gen.calls)
	}
}

func TestGenerateGuide_ForceRegenerate(t *testing.T) {
	store := newMockGuideStore()
	gen := &mockGenerator{response: validGuideJSON}
	svc := newGuideService(store, gen)

	if _, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "dap_caf"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "dap_caf", ForceRegenerate: true}); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if gen.calls != 2 {
		t.Errorf("expected 2 LLM calls with force_regenerate, got %d", gen.calls)
	}
}

func TestGenerateGuide_UnknownRequirement(t *testing.T) {
	svc := newGuideService(newMockGuideStore(), &mockGenerator{response: validGuideJSON})

	_, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "passport"})
	if err == nil {
		t.Fatal("expected validation error for unknown requirement")
	}
}

func TestGenerateGuide_FallbackOnLLMError(t *testing.T) {
	svc := newGuideService(newMockGuideStore(), &mockGenerator{err: errors.New("llm down")})

	guide, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "dap_caf"})
	if err != nil {
		t.Fatalf("fallback must not surface the LLM error, got %v", err)
	}

	if !guide.Fallback {
		t.Error("expected fallback guide")
	}
	if guide.ConfidenceLevel != domain.ConfidenceLow {
		t.Errorf("fallback guides are always low confidence, got %s", guide.ConfidenceLevel)
	}
	if len(guide.Steps) == 0 {
		t.Error("fallback guide must still have steps")
	}
}

func TestGenerateGuide_FallbackOnBadJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "Claro! Aqui está o guia que você pediu..."},
		{"missing summary", `{"steps": [{"number": 1, "title": "a", "description": "b"}], "estimated_time_days": 7, "confidence_level": "high"}`},
		{"no steps", `{"summary": "s", "steps": [], "estimated_time_days": 7, "confidence_level": "high"}`},
		{"bad numbering", `{"summary": "s", "steps": [{"number": 2, "title": "a", "description": "b"}], "estimated_time_days": 7, "confidence_level": "high"}`},
		{"days out of range", `{"summary": "s", "steps": [{"number": 1, "title": "a", "description": "b"}], "estimated_time_days": 0, "confidence_level": "high"}`},
		{"bad confidence", `{"summary": "s", "steps": [{"number": 1, "title": "a", "description": "b"}], "estimated_time_days": 7, "confidence_level": "certain"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newGuideService(newMockGuideStore(), &mockGenerator{response: tt.response})

			guide, err := svc.GenerateGuide(context.Background(), "user-1",
				&domain.GenerateGuideRequest{RequirementID: "dap_caf"})
			if err != nil {
				t.Fatalf("expected fallback, got error %v", err)
			}
			if !guide.Fallback {
				t.Error("invalid LLM output must produce the fallback guide")
			}
		})
	}
}

func TestGenerateGuide_ToleratesCodeFences(t *testing.T) {
	svc := newGuideService(newMockGuideStore(), &mockGenerator{
		response: "```json\n" + validGuideJSON + "\n```",
	})

	guide, err := svc.GenerateGuide(context.Background(), "user-1",
		&domain.GenerateGuideRequest{RequirementID: "bank_statement"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if guide.Fallback {
		t.Error("fenced JSON should parse, not fall back")
	}
}

func TestFallbackGuides_CoverAllRequirements(t *testing.T) {
	for req := range domain.KnownRequirementIDs {
		t.Run(req, func(t *testing.T) {
			svc := newGuideService(newMockGuideStore(), &mockGenerator{err: errors.New("down")})

			guide, err := svc.GenerateGuide(context.Background(), "user-1",
				&domain.GenerateGuideRequest{RequirementID: req})
			if err != nil {
				t.Fatalf("expected fallback for %s, got %v", req, err)
			}
			if guide.Summary == "" || len(guide.Steps) == 0 {
				t.Errorf("fallback for %s is incomplete", req)
			}
		})
	}
}

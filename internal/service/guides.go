package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/jobs"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var guidesTracer = otel.Tracer("service/guides")

const (
	maxGuideSteps    = 8
	maxGuideTimeDays = 365
)

// GuideService generates step-by-step formalization guides. The LLM writes
// them; a deterministic Portuguese template takes over whenever generation
// or validation fails, so the producer always gets an answer.
type GuideService struct {
	guides    port.GuideStore
	tasks     port.TaskStore
	generator port.Generator
	queue     *jobs.Queue
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewGuideService creates the guide service. queue may be nil; without it,
// PregenerateForPending is a no-op.
func NewGuideService(
	guides port.GuideStore,
	tasks port.TaskStore,
	generator port.Generator,
	queue *jobs.Queue,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *GuideService {
	return &GuideService{
		guides:    guides,
		tasks:     tasks,
		generator: generator,
		queue:     queue,
		metrics:   metrics,
		logger:    logger,
	}
}

// GenerateGuide returns the guide for one requirement, generating it on the
// first request and reusing the stored copy afterwards.
func (s *GuideService) GenerateGuide(ctx context.Context, userID string, req *domain.GenerateGuideRequest) (*domain.FormalizationGuide, error) {
	ctx, span := guidesTracer.Start(ctx, "GuideService.GenerateGuide")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("requirement.id", req.RequirementID),
	)

	if !domain.KnownRequirementIDs[req.RequirementID] {
		return nil, &domain.ErrValidation{
			Field:   "requirement_id",
			Message: fmt.Sprintf("unknown requirement %q", req.RequirementID),
		}
	}

	if !req.ForceRegenerate {
		stored, err := s.guides.GetGuide(ctx, userID, req.RequirementID)
		if err == nil {
			return stored, nil
		}
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	guide := s.generate(ctx, userID, req.RequirementID)
	if err := s.guides.UpsertGuide(ctx, guide); err != nil {
		return nil, err
	}
	return guide, nil
}

// PregenerateForPending queues background guide generation for every pending
// task, so the producer opens them instantly later. Safe to call often:
// already stored guides are not regenerated.
func (s *GuideService) PregenerateForPending(userID string) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue("guide_pregeneration", func(ctx context.Context) error {
		tasks, err := s.tasks.ListTasks(ctx, userID)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.Status != domain.TaskPending || task.RequirementID == "" {
				continue
			}
			if !domain.KnownRequirementIDs[task.RequirementID] {
				continue
			}
			if _, err := s.guides.GetGuide(ctx, userID, task.RequirementID); err == nil {
				continue
			}
			guide := s.generate(ctx, userID, task.RequirementID)
			if err := s.guides.UpsertGuide(ctx, guide); err != nil {
				return err
			}
		}
		return nil
	})
}

// generate asks the LLM for a guide and falls back to the template on any
// failure. Never returns nil.
func (s *GuideService) generate(ctx context.Context, userID, requirementID string) *domain.FormalizationGuide {
	raw, err := s.generator.Generate(ctx, buildGuidePrompt(requirementID))
	if err != nil {
		s.logger.Warn("guide generation failed, using fallback",
			zap.String("user_id", userID),
			zap.String("requirement_id", requirementID),
			zap.Error(err),
		)
		s.metrics.IncrGuide("fallback")
		return fallbackGuide(userID, requirementID)
	}

	guide, err := parseGuide(raw)
	if err != nil {
		s.logger.Warn("generated guide failed validation, using fallback",
			zap.String("user_id", userID),
			zap.String("requirement_id", requirementID),
			zap.Error(err),
		)
		s.metrics.IncrGuide("fallback")
		return fallbackGuide(userID, requirementID)
	}

	guide.UserID = userID
	guide.RequirementID = requirementID
	guide.GeneratedAt = time.Now()
	s.metrics.IncrGuide("llm")
	return guide
}

// buildGuidePrompt asks for strict JSON so the response can be validated.
func buildGuidePrompt(requirementID string) string {
	subject := requirementSubjects[requirementID]
	return fmt.Sprintf(`Você é um assistente que ajuda pequenos agricultores familiares brasileiros a se formalizarem para vender ao PNAE.

Escreva um guia passo a passo explicando como %s. Use português simples, sem jargão jurídico, pensando em quem tem pouca escolaridade.

Responda SOMENTE com JSON válido neste formato, sem texto antes ou depois:
{
  "summary": "resumo em uma frase",
  "steps": [{"number": 1, "title": "título curto", "description": "o que fazer"}],
  "estimated_time_days": 7,
  "where_to_go": "onde ir",
  "confidence_level": "high"
}

Regras: no máximo %d passos numerados a partir de 1, estimated_time_days entre 1 e %d, confidence_level um de "high", "medium" ou "low".`,
		subject, maxGuideSteps, maxGuideTimeDays)
}

// requirementSubjects phrases each requirement for the prompt and the
// fallback templates.
var requirementSubjects = map[string]string{
	"has_cpf":        "regularizar o CPF na Receita Federal",
	"dap_caf":        "emitir a CAF (antiga DAP) de agricultor familiar",
	"cnpj":           "regularizar o CNPJ de um grupo formal de agricultores",
	"bank_statement": "abrir uma conta bancária para receber pagamentos do PNAE",
	"proof_address":  "conseguir um comprovante de endereço válido",
}

// parseGuide decodes and validates the LLM output. Markdown code fences are
// tolerated; everything else must be strict JSON.
func parseGuide(raw string) (*domain.FormalizationGuide, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var guide domain.FormalizationGuide
	if err := json.Unmarshal([]byte(cleaned), &guide); err != nil {
		return nil, fmt.Errorf("decode guide json: %w", err)
	}

	if guide.Summary == "" {
		return nil, fmt.Errorf("guide has no summary")
	}
	if len(guide.Steps) == 0 || len(guide.Steps) > maxGuideSteps {
		return nil, fmt.Errorf("guide has %d steps, want 1..%d", len(guide.Steps), maxGuideSteps)
	}
	for i, step := range guide.Steps {
		if step.Number != i+1 {
			return nil, fmt.Errorf("step %d is numbered %d", i+1, step.Number)
		}
		if step.Title == "" || step.Description == "" {
			return nil, fmt.Errorf("step %d is missing title or description", i+1)
		}
	}
	if guide.EstimatedTimeDays < 1 || guide.EstimatedTimeDays > maxGuideTimeDays {
		return nil, fmt.Errorf("estimated_time_days %d out of range", guide.EstimatedTimeDays)
	}
	switch guide.ConfidenceLevel {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	default:
		return nil, fmt.Errorf("invalid confidence_level %q", guide.ConfidenceLevel)
	}

	guide.Fallback = false
	return &guide, nil
}

// ============================================================
// Deterministic fallback guides
// ============================================================

// fallbackGuide returns the static template for the requirement. Templates
// exist for every known requirement id, so a generic one is only a guard.
func fallbackGuide(userID, requirementID string) *domain.FormalizationGuide {
	guide, ok := fallbackGuides[requirementID]
	if !ok {
		guide = domain.FormalizationGuide{
			Summary: "Procure o sindicato rural ou a EMATER da sua cidade para resolver esta pendência.",
			Steps: []domain.GuideStep{
				{Number: 1, Title: "Procure ajuda", Description: "Vá ao sindicato rural ou ao escritório da EMATER e explique o que você precisa."},
			},
			EstimatedTimeDays: 15,
			WhereToGo:         "Sindicato rural ou EMATER",
			ConfidenceLevel:   domain.ConfidenceLow,
		}
	}
	guide.UserID = userID
	guide.RequirementID = requirementID
	guide.Fallback = true
	guide.ConfidenceLevel = domain.ConfidenceLow
	guide.GeneratedAt = time.Now()
	return &guide
}

var fallbackGuides = map[string]domain.FormalizationGuide{
	"has_cpf": {
		Summary: "Como conferir e regularizar o seu CPF na Receita Federal.",
		Steps: []domain.GuideStep{
			{Number: 1, Title: "Consulte a situação", Description: "No site da Receita Federal, procure por \"consulta situação cadastral CPF\" e informe seu CPF e data de nascimento."},
			{Number: 2, Title: "Veja o resultado", Description: "Se aparecer \"regular\", está tudo certo. Se aparecer \"pendente de regularização\", siga para o próximo passo."},
			{Number: 3, Title: "Regularize", Description: "Vá a uma agência dos Correios, do Banco do Brasil ou da Caixa com RG e título de eleitor e peça a regularização do CPF."},
		},
		EstimatedTimeDays: 7,
		WhereToGo:         "Site da Receita Federal, Correios ou agência da Caixa",
	},
	"dap_caf": {
		Summary: "Como emitir a CAF (antiga DAP), o documento que comprova que você é agricultor familiar.",
		Steps: []domain.GuideStep{
			{Number: 1, Title: "Separe os documentos", Description: "CPF, comprovante de endereço e notas ou declarações que mostrem a sua produção."},
			{Number: 2, Title: "Procure o emissor", Description: "Vá ao sindicato dos trabalhadores rurais ou ao escritório da EMATER da sua cidade. A emissão é gratuita."},
			{Number: 3, Title: "Faça a entrevista", Description: "O técnico vai perguntar sobre a sua terra, o que você produz e a renda da família."},
			{Number: 4, Title: "Guarde o número", Description: "Com a CAF emitida, anote o número. Ele será pedido em toda chamada pública do PNAE."},
		},
		EstimatedTimeDays: 15,
		WhereToGo:         "Sindicato rural ou escritório da EMATER",
	},
	"cnpj": {
		Summary: "Como regularizar o CNPJ do seu grupo formal (cooperativa ou associação).",
		Steps: []domain.GuideStep{
			{Number: 1, Title: "Consulte a situação", Description: "No site da Receita Federal, consulte o CNPJ da cooperativa ou associação."},
			{Number: 2, Title: "Converse com a diretoria", Description: "Pendências de CNPJ são resolvidas pelo responsável legal do grupo, com apoio de um contador."},
			{Number: 3, Title: "Regularize as declarações", Description: "Normalmente a pendência é declaração anual atrasada. O contador emite e transmite pelo sistema da Receita."},
		},
		EstimatedTimeDays: 30,
		WhereToGo:         "Contador do grupo ou posto da Receita Federal",
	},
	"bank_statement": {
		Summary: "Como abrir uma conta bancária no seu nome para receber os pagamentos do PNAE.",
		Steps: []domain.GuideStep{
			{Number: 1, Title: "Escolha o banco", Description: "Qualquer banco serve, inclusive contas digitais gratuitas abertas pelo celular."},
			{Number: 2, Title: "Separe os documentos", Description: "CPF, RG e comprovante de endereço. Para conta digital, basta fotografar os documentos."},
			{Number: 3, Title: "Abra a conta", Description: "Abra uma conta corrente ou poupança no SEU nome. A prefeitura só paga em conta do próprio fornecedor."},
		},
		EstimatedTimeDays: 3,
		WhereToGo:         "Agência bancária ou aplicativo de banco digital",
	},
	"proof_address": {
		Summary: "Como conseguir um comprovante de endereço válido.",
		Steps: []domain.GuideStep{
			{Number: 1, Title: "Procure uma conta recente", Description: "Conta de luz, água ou telefone dos últimos três meses, no seu nome."},
			{Number: 2, Title: "Sem conta no seu nome?", Description: "Peça uma declaração de residência no sindicato rural ou na associação de moradores."},
			{Number: 3, Title: "Guarde uma cópia", Description: "Tire foto ou cópia do comprovante e guarde com os outros documentos da formalização."},
		},
		EstimatedTimeDays: 2,
		WhereToGo:         "Sindicato rural ou associação de moradores",
	},
}

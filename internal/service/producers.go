package service

import (
	"context"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var producersTracer = otel.Tracer("service/producers")

// ProducerService manages producer profiles.
type ProducerService struct {
	profiles port.ProfileStore
	logger   *zap.Logger
}

// NewProducerService creates the producer service.
func NewProducerService(profiles port.ProfileStore, logger *zap.Logger) *ProducerService {
	return &ProducerService{profiles: profiles, logger: logger}
}

// GetProfile returns the user's profile, or ErrNotFound before onboarding.
func (s *ProducerService) GetProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error) {
	ctx, span := producersTracer.Start(ctx, "ProducerService.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.profiles.GetProfile(ctx, userID)
}

// UpsertProfile creates or replaces the user's profile from an explicit
// submission. Requirement flags set by onboarding are preserved: only the
// submitted identification and banking fields are replaced.
func (s *ProducerService) UpsertProfile(ctx context.Context, userID string, req *domain.UpsertProfileRequest) (*domain.ProducerProfile, error) {
	ctx, span := producersTracer.Start(ctx, "ProducerService.UpsertProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if req.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if req.ProducerType != "" && !knownProducerTypeInput(req.ProducerType) {
		return nil, &domain.ErrValidation{Field: "producer_type", Message: "unknown producer type"}
	}
	producerType := domain.ParseProducerType(req.ProducerType)
	if producerType == domain.ProducerFormal && req.CNPJ == "" {
		return nil, &domain.ErrValidation{Field: "cnpj", Message: "formal producers must inform a CNPJ"}
	}

	profile := &domain.ProducerProfile{
		UserID:       userID,
		Name:         req.Name,
		ProducerType: producerType,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		CNPJ:         req.CNPJ,
		HasCPF:       true,
		HasCNPJ:      req.CNPJ != "",
		BankName:     req.BankName,
		BankAgency:   req.BankAgency,
		BankAccount:  req.BankAccount,
		MainProducts: req.MainProducts,
	}

	// Merges over the existing profile so onboarding flags survive a
	// profile edit.
	if existing, err := s.profiles.GetProfile(ctx, userID); err == nil && existing != nil {
		profile.HasDAPCAF = existing.HasDAPCAF
		profile.HasBankAccount = existing.HasBankAccount
		profile.HasAddressProof = existing.HasAddressProof
		profile.HasPreviousSales = existing.HasPreviousSales
		profile.WantsToSellToSchool = existing.WantsToSellToSchool
		if !profile.HasCNPJ {
			profile.HasCNPJ = existing.HasCNPJ
		}
		if profile.ProductionType == "" {
			profile.ProductionType = existing.ProductionType
		}
		if profile.ProductionCapacity == "" {
			profile.ProductionCapacity = existing.ProductionCapacity
		}
		if len(profile.MainProducts) == 0 {
			profile.MainProducts = existing.MainProducts
		}
	}

	saved, err := s.profiles.UpsertProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("producer profile saved",
		zap.String("user_id", userID),
		zap.String("producer_type", string(saved.ProducerType)),
	)
	return saved, nil
}

// knownProducerTypeInput accepts both the raw enum values and the onboarding
// choice labels.
func knownProducerTypeInput(v string) bool {
	switch v {
	case string(domain.ProducerIndividual), string(domain.ProducerInformal), string(domain.ProducerFormal),
		"Individual", "Grupo Informal", "Formal (CNPJ)", "Grupo Formal (CNPJ)":
		return true
	}
	return false
}

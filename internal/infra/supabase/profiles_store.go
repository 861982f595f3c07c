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
// Producer profiles (implements port.ProfileStore)
// table: producer_profiles, upsert key: user_id
// ============================================================

type profileRow struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	ProducerType string `json:"producer_type"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	CNPJ         string `json:"cnpj"`

	HasCPF              bool `json:"has_cpf"`
	HasDAPCAF           bool `json:"has_dap_caf"`
	HasCNPJ             bool `json:"has_cnpj"`
	HasBankAccount      bool `json:"has_bank_account"`
	HasAddressProof     bool `json:"has_address_proof"`
	HasPreviousSales    bool `json:"has_previous_sales"`
	WantsToSellToSchool bool `json:"wants_to_sell_to_school"`

	ProductionType     string `json:"production_type"`
	MainProducts       string `json:"main_products"` // comma-joined
	ProductionCapacity string `json:"production_capacity"`

	BankName    string `json:"bank_name"`
	BankAgency  string `json:"bank_agency"`
	BankAccount string `json:"bank_account"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (r *profileRow) toDomain() *domain.ProducerProfile {
	p := &domain.ProducerProfile{
		UserID:              r.UserID,
		Name:                r.Name,
		ProducerType:        domain.ProducerType(r.ProducerType),
		Address:             r.Address,
		City:                r.City,
		State:               r.State,
		CNPJ:                r.CNPJ,
		HasCPF:              r.HasCPF,
		HasDAPCAF:           r.HasDAPCAF,
		HasCNPJ:             r.HasCNPJ,
		HasBankAccount:      r.HasBankAccount,
		HasAddressProof:     r.HasAddressProof,
		HasPreviousSales:    r.HasPreviousSales,
		WantsToSellToSchool: r.WantsToSellToSchool,
		ProductionType:      r.ProductionType,
		ProductionCapacity:  r.ProductionCapacity,
		BankName:            r.BankName,
		BankAgency:          r.BankAgency,
		BankAccount:         r.BankAccount,
	}
	if r.MainProducts != "" {
		p.MainProducts = strings.Split(r.MainProducts, ",")
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	return p
}

// GetProfile fetches the producer profile for a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("producer_profiles?user_id=eq.%s&limit=1", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}

	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	return rows[0].toDomain(), nil
}

// UpsertProfile inserts or merges a profile keyed by user_id and returns the
// stored document.
func (c *Client) UpsertProfile(ctx context.Context, profile *domain.ProducerProfile) (*domain.ProducerProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", profile.UserID))

	data := map[string]any{
		"user_id":                 profile.UserID,
		"name":                    profile.Name,
		"producer_type":           string(profile.ProducerType),
		"address":                 profile.Address,
		"city":                    profile.City,
		"state":                   profile.State,
		"cnpj":                    profile.CNPJ,
		"has_cpf":                 profile.HasCPF,
		"has_dap_caf":             profile.HasDAPCAF,
		"has_cnpj":                profile.HasCNPJ,
		"has_bank_account":        profile.HasBankAccount,
		"has_address_proof":       profile.HasAddressProof,
		"has_previous_sales":      profile.HasPreviousSales,
		"wants_to_sell_to_school": profile.WantsToSellToSchool,
		"production_type":         profile.ProductionType,
		"main_products":           strings.Join(profile.MainProducts, ","),
		"production_capacity":     profile.ProductionCapacity,
		"bank_name":               profile.BankName,
		"bank_agency":             profile.BankAgency,
		"bank_account":            profile.BankAccount,
		"updated_at":              time.Now().Format(time.RFC3339),
	}

	body, err := c.doUpsert(ctx, "producer_profiles", "user_id", data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: err}
	}

	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return profile, nil
	}
	return rows[0].toDomain(), nil
}

// UpdateProfileFields patches individual profile columns (flag propagation).
func (c *Client) UpdateProfileFields(ctx context.Context, userID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfileFields")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("producer_profiles?user_id=eq.%s", userID)
	if err := c.doPatch(ctx, path, updates); err != nil {
		return &domain.ErrExternalService{Service: "supabase/profiles", Err: err}
	}
	return nil
}

package domain

import "time"

// ProducerType classifies how the farmer operates. Values mirror the
// producer_type onboarding question.
type ProducerType string

const (
	ProducerIndividual ProducerType = "individual"
	ProducerInformal   ProducerType = "informal"
	ProducerFormal     ProducerType = "formal"
)

// ValidProducerType reports whether v is one of the known producer types.
func ValidProducerType(v ProducerType) bool {
	switch v {
	case ProducerIndividual, ProducerInformal, ProducerFormal:
		return true
	}
	return false
}

// ParseProducerType maps onboarding choice labels and raw enum values to a
// ProducerType. Unknown values default to individual.
func ParseProducerType(v string) ProducerType {
	switch v {
	case "Individual", string(ProducerIndividual):
		return ProducerIndividual
	case "Grupo Informal", string(ProducerInformal):
		return ProducerInformal
	case "Formal (CNPJ)", "Grupo Formal (CNPJ)", string(ProducerFormal):
		return ProducerFormal
	}
	return ProducerIndividual
}

// ProducerProfile is the per-user profile document. At most one exists per
// user (upsert key = user_id). It is created lazily on the first onboarding
// answer or an explicit profile submission and is never hard-deleted.
type ProducerProfile struct {
	UserID       string       `json:"user_id"`
	Name         string       `json:"name"`
	ProducerType ProducerType `json:"producer_type"`

	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	CNPJ    string `json:"cnpj,omitempty"`

	// Requirement flags. CPF is captured at login, so HasCPF defaults to
	// true when a profile is created.
	HasCPF              bool `json:"has_cpf"`
	HasDAPCAF           bool `json:"has_dap_caf"`
	HasCNPJ             bool `json:"has_cnpj"`
	HasBankAccount      bool `json:"has_bank_account"`
	HasAddressProof     bool `json:"has_address_proof"`
	HasPreviousSales    bool `json:"has_previous_sales"`
	WantsToSellToSchool bool `json:"wants_to_sell_to_school"`

	// Production data collected during onboarding.
	ProductionType     string   `json:"production_type,omitempty"`
	MainProducts       []string `json:"main_products,omitempty"`
	ProductionCapacity string   `json:"production_capacity,omitempty"`

	// Free-form banking fields.
	BankName    string `json:"bank_name,omitempty"`
	BankAgency  string `json:"bank_agency,omitempty"`
	BankAccount string `json:"bank_account,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertProfileRequest is the body of PUT /v1/producers/profile.
type UpsertProfileRequest struct {
	Name         string   `json:"name"`
	ProducerType string   `json:"producer_type"`
	Address      string   `json:"address,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	CNPJ         string   `json:"cnpj,omitempty"`
	BankName     string   `json:"bank_name,omitempty"`
	BankAgency   string   `json:"bank_agency,omitempty"`
	BankAccount  string   `json:"bank_account,omitempty"`
	MainProducts []string `json:"main_products,omitempty"`
}

package domain

import "strings"

// MergeResponses builds the DiagnosisInput from the two data sources that
// carry requirement facts.
//
// Precedence rule: the profile wins. Onboarding answers seed each field, and
// when a profile exists its flags override every answer-derived value,
// field by field. The profile is the system of record because task
// completion and direct edits land there first; SaveAnswer propagates each
// answer into the profile immediately, so the two converge. This is the ONLY
// place the two sources are blended.
//
// When neither source mentions CPF it is assumed present: the CPF is
// collected at login, before any onboarding happens.
func MergeResponses(answers map[string]string, profile *ProducerProfile) DiagnosisInput {
	in := DiagnosisInput{
		ProducerType: ProducerIndividual,
		HasCPF:       true,
	}

	if v, ok := answers["producer_type"]; ok {
		in.ProducerType = ParseProducerType(v)
	}
	if v, ok := answers["has_dap_caf"]; ok {
		in.HasDAPCAF = answerBool(v)
	}
	if v, ok := answers["has_cnpj"]; ok {
		in.HasCNPJ = answerBool(v)
	}
	if v, ok := answers["has_bank_account"]; ok {
		in.HasBankAccount = answerBool(v)
	}
	if v, ok := answers["has_address_proof"]; ok {
		in.HasAddressProof = answerBool(v)
	}
	if v, ok := answers["has_previous_sales"]; ok {
		in.HasPreviousSales = answerBool(v)
	}
	if v, ok := answers["wants_to_sell_to_school"]; ok {
		in.WantsToSellToSchool = answerBool(v)
	}

	if profile != nil {
		in.ProducerType = profile.ProducerType
		in.HasCPF = profile.HasCPF
		in.HasDAPCAF = profile.HasDAPCAF
		in.HasCNPJ = profile.HasCNPJ
		in.HasBankAccount = profile.HasBankAccount
		in.HasAddressProof = profile.HasAddressProof
		in.HasPreviousSales = profile.HasPreviousSales
		in.WantsToSellToSchool = profile.WantsToSellToSchool
	}

	return in
}

// answerBool interprets the raw stored answer value as a boolean. Onboarding
// runs in Portuguese, so "sim" counts as true alongside the canonical forms.
func answerBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "sim", "yes", "1":
		return true
	}
	return false
}

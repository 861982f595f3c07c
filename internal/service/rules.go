package service

import (
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
)

// ============================================================
// Eligibility rules — pure functions, no I/O
// ============================================================

// Scoring weights. CPF is captured at login so every diagnosis starts
// from its base score.
const (
	scoreBaseCPF      = 30
	scoreDAPCAF       = 30
	scoreCNPJ         = 20
	scoreBankAccount  = 10
	scoreAddressProof = 10
	scorePrevSales    = 5

	eligibleThreshold   = 70
	partialThreshold    = 50
	maxEligibilityScore = 100
)

// CalculateEligibility derives the PNAE eligibility diagnosis from the
// merged producer facts. Deterministic: same input, same diagnosis.
//
// DAP/CAF is the essential requirement for every producer type; a CNPJ is
// additionally essential for formal producers. Score alone never makes a
// producer eligible while an essential document is missing.
func CalculateEligibility(input domain.DiagnosisInput) domain.Diagnosis {
	d := domain.Diagnosis{
		Score:               scoreBaseCPF,
		RequirementsMet:     []string{},
		RequirementsMissing: []string{},
		Recommendations:     []string{},
	}
	d.RequirementsMet = append(d.RequirementsMet, "CPF")

	if input.HasDAPCAF {
		d.Score += scoreDAPCAF
		d.RequirementsMet = append(d.RequirementsMet, "DAP ou CAF")
	} else {
		d.RequirementsMissing = append(d.RequirementsMissing, "DAP ou CAF")
		d.Recommendations = append(d.Recommendations,
			"Emita sua CAF (antiga DAP) no sindicato rural ou na EMATER. É o documento mais importante para vender ao PNAE.")
	}

	// CNPJ gates only formal producers. Everyone else receives the type
	// points regardless, since no CNPJ is required of them.
	if input.HasCNPJ {
		d.Score += scoreCNPJ
		d.RequirementsMet = append(d.RequirementsMet, "CNPJ")
	} else if input.ProducerType != domain.ProducerFormal {
		d.Score += scoreCNPJ
	} else {
		d.RequirementsMissing = append(d.RequirementsMissing, "CNPJ")
		d.Recommendations = append(d.Recommendations,
			"Grupos formais precisam de CNPJ ativo. Regularize o CNPJ da sua cooperativa ou associação.")
	}

	if input.HasBankAccount {
		d.Score += scoreBankAccount
		d.RequirementsMet = append(d.RequirementsMet, "Conta bancária")
	} else {
		d.RequirementsMissing = append(d.RequirementsMissing, "Conta bancária")
	}

	if input.HasAddressProof {
		d.Score += scoreAddressProof
		d.RequirementsMet = append(d.RequirementsMet, "Comprovante de endereço")
	} else {
		d.RequirementsMissing = append(d.RequirementsMissing, "Comprovante de endereço")
	}

	if input.HasPreviousSales {
		d.Score += scorePrevSales
	}

	if d.Score > maxEligibilityScore {
		d.Score = maxEligibilityScore
	}
	if d.Score < 0 {
		d.Score = 0
	}

	essentialOK := input.HasDAPCAF &&
		(input.ProducerType != domain.ProducerFormal || input.HasCNPJ)

	switch {
	case essentialOK && d.Score >= eligibleThreshold:
		d.EligibilityLevel = domain.Eligible
		d.IsEligible = true
	case essentialOK && d.Score >= partialThreshold:
		d.EligibilityLevel = domain.PartiallyEligible
	default:
		d.EligibilityLevel = domain.NotEligible
	}

	if d.IsEligible && !input.HasPreviousSales {
		d.Recommendations = append(d.Recommendations,
			"Comece com vendas pequenas para a merenda escolar da sua cidade e ganhe experiência com as chamadas públicas.")
	}

	return d
}

// RequiredTaskCodes derives which tasks the producer needs from the merged
// facts. Recomputed fresh on every call so stale requirements never stick.
func RequiredTaskCodes(input domain.DiagnosisInput) []domain.TaskCode {
	var codes []domain.TaskCode
	if !input.HasCPF {
		codes = append(codes, domain.TaskHasCPF)
	}
	if !input.HasDAPCAF {
		codes = append(codes, domain.TaskHasFamilyFarmerRegistration)
	}
	if !input.HasBankAccount {
		codes = append(codes, domain.TaskHasBankAccount)
	}
	if !input.HasAddressProof {
		codes = append(codes, domain.TaskHasAddressProof)
	}
	if input.WantsToSellToSchool {
		codes = append(codes, domain.TaskSalesProjectReady, domain.TaskPublicCallSubmissionReady)
	}
	return codes
}

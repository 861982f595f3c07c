package service_test

import (
	"testing"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/service"
)

func TestCalculateEligibility_OnlyCPF(t *testing.T) {
	d := service.CalculateEligibility(domain.DiagnosisInput{
		ProducerType: domain.ProducerIndividual,
		HasCPF:       true,
	})

	// 30 base + 20 type points: no CNPJ is asked of an individual.
	if d.Score != 50 {
		t.Errorf("expected score 50, got %d", d.Score)
	}
	if d.EligibilityLevel != domain.NotEligible {
		t.Errorf("expected not_eligible, got %s", d.EligibilityLevel)
	}
	if d.IsEligible {
		t.Error("expected not eligible")
	}
}

func TestCalculateEligibility_FullFormal(t *testing.T) {
	d := service.CalculateEligibility(domain.DiagnosisInput{
		ProducerType:     domain.ProducerFormal,
		HasCPF:           true,
		HasDAPCAF:        true,
		HasCNPJ:          true,
		HasBankAccount:   true,
		HasAddressProof:  true,
		HasPreviousSales: true,
	})

	if d.Score != 100 {
		t.Errorf("expected score 100, got %d", d.Score)
	}
	if d.EligibilityLevel != domain.Eligible {
		t.Errorf("expected eligible, got %s", d.EligibilityLevel)
	}
	if !d.IsEligible {
		t.Error("expected eligible")
	}
	if len(d.RequirementsMissing) != 0 {
		t.Errorf("expected no missing requirements, got %v", d.RequirementsMissing)
	}
}

func TestCalculateEligibility_DAPCAFIsEssential(t *testing.T) {
	// High score but no DAP/CAF: never eligible, not even partially.
	d := service.CalculateEligibility(domain.DiagnosisInput{
		ProducerType:     domain.ProducerIndividual,
		HasCPF:           true,
		HasCNPJ:          true,
		HasBankAccount:   true,
		HasAddressProof:  true,
		HasPreviousSales: true,
	})

	if d.Score < 50 {
		t.Fatalf("test setup expects score >= 50, got %d", d.Score)
	}
	if d.EligibilityLevel != domain.NotEligible {
		t.Errorf("expected not_eligible without DAP/CAF, got %s", d.EligibilityLevel)
	}
}

func TestCalculateEligibility_FormalNeedsCNPJ(t *testing.T) {
	input := domain.DiagnosisInput{
		ProducerType:    domain.ProducerFormal,
		HasCPF:          true,
		HasDAPCAF:       true,
		HasBankAccount:  true,
		HasAddressProof: true,
	}

	d := service.CalculateEligibility(input)
	if d.IsEligible {
		t.Error("formal producer without CNPJ must not be eligible")
	}
	if d.EligibilityLevel != domain.NotEligible {
		t.Errorf("expected not_eligible, got %s", d.EligibilityLevel)
	}

	// Same documents, informal group: CNPJ is not essential.
	input.ProducerType = domain.ProducerInformal
	d = service.CalculateEligibility(input)
	if !d.IsEligible {
		t.Error("informal group with DAP/CAF and score >= 70 should be eligible")
	}
}

func TestCalculateEligibility_IndividualWithDAPCAF(t *testing.T) {
	d := service.CalculateEligibility(domain.DiagnosisInput{
		ProducerType: domain.ProducerIndividual,
		HasCPF:       true,
		HasDAPCAF:    true,
	})

	// 30 base + 30 DAP/CAF + 20 type points crosses the line on its own.
	if d.Score != 80 {
		t.Errorf("expected score 80, got %d", d.Score)
	}
	if d.EligibilityLevel != domain.Eligible {
		t.Errorf("expected eligible, got %s", d.EligibilityLevel)
	}
	if !d.IsEligible {
		t.Error("expected is_eligible")
	}
}

func TestCalculateEligibility_SmallSalesRecommendation(t *testing.T) {
	d := service.CalculateEligibility(domain.DiagnosisInput{
		ProducerType:    domain.ProducerIndividual,
		HasCPF:          true,
		HasDAPCAF:       true,
		HasCNPJ:         true,
		HasBankAccount:  true,
		HasAddressProof: true,
	})

	if !d.IsEligible {
		t.Fatal("expected eligible")
	}
	if len(d.Recommendations) == 0 {
		t.Error("eligible producer without sales history should get the small-sales recommendation")
	}
}

func TestCalculateEligibility_Deterministic(t *testing.T) {
	input := domain.DiagnosisInput{
		ProducerType:   domain.ProducerInformal,
		HasCPF:         true,
		HasDAPCAF:      true,
		HasBankAccount: true,
	}

	a := service.CalculateEligibility(input)
	b := service.CalculateEligibility(input)

	if a.Score != b.Score || a.EligibilityLevel != b.EligibilityLevel {
		t.Errorf("diagnosis not deterministic: %+v vs %+v", a, b)
	}
}

func TestRequiredTaskCodes(t *testing.T) {
	tests := []struct {
		name  string
		input domain.DiagnosisInput
		want  []domain.TaskCode
	}{
		{
			name:  "nothing held",
			input: domain.DiagnosisInput{},
			want: []domain.TaskCode{
				domain.TaskHasCPF,
				domain.TaskHasFamilyFarmerRegistration,
				domain.TaskHasBankAccount,
				domain.TaskHasAddressProof,
			},
		},
		{
			name: "everything held, wants to sell",
			input: domain.DiagnosisInput{
				HasCPF:              true,
				HasDAPCAF:           true,
				HasBankAccount:      true,
				HasAddressProof:     true,
				WantsToSellToSchool: true,
			},
			want: []domain.TaskCode{
				domain.TaskSalesProjectReady,
				domain.TaskPublicCallSubmissionReady,
			},
		},
		{
			name: "everything held, no sales intent",
			input: domain.DiagnosisInput{
				HasCPF:          true,
				HasDAPCAF:       true,
				HasBankAccount:  true,
				HasAddressProof: true,
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.RequiredTaskCodes(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

package domain

// ProfileFlag is the closed set of requirement flags on a producer profile.
// Persisted column names match the flag values, so they double as update keys
// for the document store.
type ProfileFlag string

const (
	FlagHasCPF              ProfileFlag = "has_cpf"
	FlagHasDAPCAF           ProfileFlag = "has_dap_caf"
	FlagHasCNPJ             ProfileFlag = "has_cnpj"
	FlagHasBankAccount      ProfileFlag = "has_bank_account"
	FlagHasAddressProof     ProfileFlag = "has_address_proof"
	FlagHasPreviousSales    ProfileFlag = "has_previous_sales"
	FlagWantsToSellToSchool ProfileFlag = "wants_to_sell_to_school"
)

// AllProfileFlags lists every known flag. Tests use it to catch drift between
// the enum and the mapping tables below.
var AllProfileFlags = []ProfileFlag{
	FlagHasCPF,
	FlagHasDAPCAF,
	FlagHasCNPJ,
	FlagHasBankAccount,
	FlagHasAddressProof,
	FlagHasPreviousSales,
	FlagWantsToSellToSchool,
}

// TaskCode is the closed set of formalization task codes.
type TaskCode string

const (
	TaskHasCPF                      TaskCode = "HAS_CPF"
	TaskHasFamilyFarmerRegistration TaskCode = "HAS_FAMILY_FARMER_REGISTRATION"
	TaskHasBankAccount              TaskCode = "HAS_BANK_ACCOUNT"
	TaskHasAddressProof             TaskCode = "HAS_ADDRESS_PROOF"
	TaskSalesProjectReady           TaskCode = "SALES_PROJECT_READY"
	TaskPublicCallSubmissionReady   TaskCode = "PUBLIC_CALL_SUBMISSION_READY"
)

// AllTaskCodes lists every known task code in catalog order.
var AllTaskCodes = []TaskCode{
	TaskHasCPF,
	TaskHasFamilyFarmerRegistration,
	TaskHasBankAccount,
	TaskHasAddressProof,
	TaskSalesProjectReady,
	TaskPublicCallSubmissionReady,
}

// KnownTaskCode reports whether code belongs to the closed enumeration.
func KnownTaskCode(code TaskCode) bool {
	for _, c := range AllTaskCodes {
		if c == code {
			return true
		}
	}
	return false
}

// FlagForTask maps a task code to the profile flag it satisfies when the task
// is completed. The two sales-readiness tasks have no backing flag: they are
// deliverables, not documents.
var FlagForTask = map[TaskCode]ProfileFlag{
	TaskHasCPF:                      FlagHasCPF,
	TaskHasFamilyFarmerRegistration: FlagHasDAPCAF,
	TaskHasBankAccount:              FlagHasBankAccount,
	TaskHasAddressProof:             FlagHasAddressProof,
}

// QuestionIDForTask maps a task code to the onboarding question whose answer
// mirrors the same fact. Used to keep the answer log consistent when a task
// is marked done.
var QuestionIDForTask = map[TaskCode]string{
	TaskHasFamilyFarmerRegistration: "has_dap_caf",
	TaskHasBankAccount:              "has_bank_account",
	TaskHasAddressProof:             "has_address_proof",
}

// FallbackRequirementID maps a task code to the formalization requirement
// used for guide generation when no onboarding question declares the link.
var FallbackRequirementID = map[TaskCode]string{
	TaskHasCPF:                      "has_cpf",
	TaskHasFamilyFarmerRegistration: "dap_caf",
	TaskHasBankAccount:              "bank_statement",
	TaskHasAddressProof:             "proof_address",
}

// KnownRequirementIDs is the set of requirement ids guides can be generated
// for. cnpj has no task of its own but is a valid guide subject for formal
// producers.
var KnownRequirementIDs = map[string]bool{
	"has_cpf":        true,
	"dap_caf":        true,
	"cnpj":           true,
	"bank_statement": true,
	"proof_address":  true,
}

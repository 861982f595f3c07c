package domain

import "time"

// EligibilityLevel is the diagnosis tier.
type EligibilityLevel string

const (
	Eligible          EligibilityLevel = "eligible"
	PartiallyEligible EligibilityLevel = "partially_eligible"
	NotEligible       EligibilityLevel = "not_eligible"
)

// DiagnosisInput is the flat flag mapping consumed by the eligibility and
// required-task rules. It is produced exclusively by MergeResponses so the
// answer/profile precedence lives in one place.
type DiagnosisInput struct {
	ProducerType        ProducerType
	HasCPF              bool
	HasDAPCAF           bool
	HasCNPJ             bool
	HasBankAccount      bool
	HasAddressProof     bool
	HasPreviousSales    bool
	WantsToSellToSchool bool
}

// Diagnosis is the result of the eligibility rules. Score is the document
// score, not the task-progress score surfaced to callers.
type Diagnosis struct {
	Score               int              `json:"score"`
	EligibilityLevel    EligibilityLevel `json:"eligibility_level"`
	IsEligible          bool             `json:"is_eligible"`
	RequirementsMet     []string         `json:"requirements_met"`
	RequirementsMissing []string         `json:"requirements_missing"`
	Recommendations     []string         `json:"recommendations"`
}

// FormalizationStatus is the per-user cached diagnosis snapshot plus the
// progress score computed from task completion. The cache is invalidated on
// every task status change; answers and profile remain the source of truth.
type FormalizationStatus struct {
	UserID              string           `json:"user_id"`
	IsEligible          bool             `json:"is_eligible"`
	EligibilityLevel    EligibilityLevel `json:"eligibility_level"`
	Score               int              `json:"score"`
	RequirementsMet     []string         `json:"requirements_met"`
	RequirementsMissing []string         `json:"requirements_missing"`
	Recommendations     []string         `json:"recommendations"`
	DiagnosedAt         time.Time        `json:"diagnosed_at"`
}

// TaskStatus is the lifecycle state of a user task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskSkipped TaskStatus = "skipped"
)

// ValidTaskStatus reports whether s is an accepted status value.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskDone, TaskSkipped:
		return true
	}
	return false
}

// TaskCatalogEntry is immutable reference data describing a task.
type TaskCatalogEntry struct {
	Code              TaskCode `json:"code"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Why               string   `json:"why,omitempty"`
	Blocking          bool     `json:"blocking"`
	EstimatedTimeDays int      `json:"estimated_time_days"`
	OrderIndex        int      `json:"order_index"`
}

// UserTask is one row per (user, task_code). Once done, resync never reverts
// it; only an explicit status change can.
type UserTask struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	TaskCode      TaskCode   `json:"task_code"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`
	Blocking      bool       `json:"blocking"`
	RequirementID string     `json:"requirement_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// UpdateTaskStatusRequest is the body of PATCH /v1/formalization/tasks/{task_code}.
type UpdateTaskStatusRequest struct {
	Status string `json:"status"`
}

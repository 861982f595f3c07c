package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var formalizationTracer = otel.Tracer("service/formalization")

// GuidePregenerator triggers background guide generation after task changes.
// Implemented by GuideService; wired after construction to avoid a cycle.
type GuidePregenerator interface {
	PregenerateForPending(userID string)
}

// FormalizationService owns the eligibility diagnosis and the synchronized
// task list. The stored diagnosis is a cache: answers and profile are the
// source of truth, and any task change deletes the cache.
type FormalizationService struct {
	profiles port.ProfileStore
	answers  port.AnswerStore
	tasks    port.TaskStore
	status   port.StatusStore
	catalog  *catalog.Catalog
	metrics  *observability.Metrics
	logger   *zap.Logger

	pregen GuidePregenerator
}

// NewFormalizationService creates the formalization service.
func NewFormalizationService(
	profiles port.ProfileStore,
	answers port.AnswerStore,
	tasks port.TaskStore,
	status port.StatusStore,
	cat *catalog.Catalog,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *FormalizationService {
	return &FormalizationService{
		profiles: profiles,
		answers:  answers,
		tasks:    tasks,
		status:   status,
		catalog:  cat,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetPregenerator wires the guide pre-generation hook. Optional: without it,
// guides are only generated on demand.
func (s *FormalizationService) SetPregenerator(p GuidePregenerator) {
	s.pregen = p
}

// ============================================================
// Status
// ============================================================

// GetOrCalculateStatus returns the current formalization status.
//
// The diagnosis is recomputed from answers and profile on every call and
// compared against the stored snapshot; the snapshot is only rewritten when
// the diagnosis actually changed, so DiagnosedAt reflects the last real
// change, not the last read. The surfaced Score is task progress, not the
// document score.
func (s *FormalizationService) GetOrCalculateStatus(ctx context.Context, userID string) (*domain.FormalizationStatus, error) {
	ctx, span := formalizationTracer.Start(ctx, "FormalizationService.GetOrCalculateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	cached, err := s.status.GetStatus(ctx, userID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		cached = nil
	}

	input, err := s.mergedInput(ctx, userID)
	if err != nil {
		return nil, err
	}
	diagnosis := CalculateEligibility(*input)

	status := &domain.FormalizationStatus{
		UserID:              userID,
		IsEligible:          diagnosis.IsEligible,
		EligibilityLevel:    diagnosis.EligibilityLevel,
		Score:               diagnosis.Score,
		RequirementsMet:     diagnosis.RequirementsMet,
		RequirementsMissing: diagnosis.RequirementsMissing,
		Recommendations:     diagnosis.Recommendations,
		DiagnosedAt:         time.Now(),
	}

	if cached == nil || diagnosisChanged(cached, status) {
		if err := s.status.UpsertStatus(ctx, status); err != nil {
			return nil, err
		}
		s.metrics.IncrDiagnosis(string(status.EligibilityLevel))
		s.logger.Info("diagnosis updated",
			zap.String("user_id", userID),
			zap.String("level", string(status.EligibilityLevel)),
			zap.Int("score", status.Score),
		)
	} else {
		// Unchanged diagnosis keeps its original timestamp.
		status.DiagnosedAt = cached.DiagnosedAt
	}

	tasks, err := s.SyncUserTasks(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	status.Score = progressScore(tasks)
	return status, nil
}

// diagnosisChanged compares the fields that define a diagnosis. DiagnosedAt
// is excluded on purpose.
func diagnosisChanged(prev, next *domain.FormalizationStatus) bool {
	return prev.IsEligible != next.IsEligible ||
		prev.EligibilityLevel != next.EligibilityLevel ||
		prev.Score != next.Score ||
		!sameStringSet(prev.RequirementsMet, next.RequirementsMet) ||
		!sameStringSet(prev.RequirementsMissing, next.RequirementsMissing)
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, v := range a {
		set[v]++
	}
	for _, v := range b {
		set[v]--
		if set[v] < 0 {
			return false
		}
	}
	return true
}

// progressScore is the share of tasks done, 0..100. No tasks means 0.
func progressScore(tasks []domain.UserTask) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == domain.TaskDone {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(tasks))))
}

// mergedInput loads answers and profile and merges them into the flat
// diagnosis input. A missing profile is normal for fresh users.
func (s *FormalizationService) mergedInput(ctx context.Context, userID string) (*domain.DiagnosisInput, error) {
	answers, err := s.answers.ListAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}
	answerMap := make(map[string]string, len(answers))
	for _, a := range answers {
		answerMap[a.QuestionID] = a.Value
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		profile = nil
	}

	input := domain.MergeResponses(answerMap, profile)
	return &input, nil
}

// ============================================================
// Task list
// ============================================================

// ListTasks returns the user's task list after a fresh resync.
func (s *FormalizationService) ListTasks(ctx context.Context, userID string) ([]domain.UserTask, error) {
	ctx, span := formalizationTracer.Start(ctx, "FormalizationService.ListTasks")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	input, err := s.mergedInput(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.SyncUserTasks(ctx, userID, input)
}

// RegenerateTasks forces a resync and returns the fresh list. Same contract
// as ListTasks; exists as an explicit recovery endpoint for the app.
func (s *FormalizationService) RegenerateTasks(ctx context.Context, userID string) ([]domain.UserTask, error) {
	ctx, span := formalizationTracer.Start(ctx, "FormalizationService.RegenerateTasks")
	defer span.End()

	return s.ListTasks(ctx, userID)
}

// SyncUserTasks reconciles the stored task list with the currently required
// set. Rules:
//
//   - done stays done, whatever the requirements say now
//   - a required task that was skipped goes back to pending
//   - a stored task no longer required is skipped, never deleted
//   - a required task with no row is created from the catalog
//
// Requirement ids are refreshed on every pass so guides always point at the
// right subject.
func (s *FormalizationService) SyncUserTasks(ctx context.Context, userID string, input *domain.DiagnosisInput) ([]domain.UserTask, error) {
	ctx, span := formalizationTracer.Start(ctx, "FormalizationService.SyncUserTasks")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	existing, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[domain.TaskCode]*domain.UserTask, len(existing))
	for i := range existing {
		byCode[existing[i].TaskCode] = &existing[i]
	}

	required := make(map[domain.TaskCode]bool)
	for _, code := range RequiredTaskCodes(*input) {
		required[code] = true
	}

	for i := range existing {
		task := &existing[i]
		reqID, err := s.resolveRequirementID(ctx, task.TaskCode)
		if err != nil {
			return nil, err
		}

		switch {
		case task.Status == domain.TaskDone:
			// Done is sticky. Only backfill a missing requirement id.
			if task.RequirementID == "" && reqID != "" {
				if err := s.tasks.UpdateTask(ctx, userID, task.TaskCode, map[string]any{
					"requirement_id": reqID,
				}); err != nil {
					return nil, err
				}
				task.RequirementID = reqID
			}

		case required[task.TaskCode] && task.Status == domain.TaskSkipped:
			if err := s.tasks.UpdateTask(ctx, userID, task.TaskCode, map[string]any{
				"status":         string(domain.TaskPending),
				"requirement_id": reqID,
			}); err != nil {
				return nil, err
			}
			task.Status = domain.TaskPending
			task.RequirementID = reqID

		case !required[task.TaskCode] && task.Status != domain.TaskSkipped:
			if err := s.tasks.UpdateTask(ctx, userID, task.TaskCode, map[string]any{
				"status": string(domain.TaskSkipped),
			}); err != nil {
				return nil, err
			}
			task.Status = domain.TaskSkipped
		}
	}

	for code := range required {
		if _, ok := byCode[code]; ok {
			continue
		}
		entry, err := s.catalog.TaskEntry(ctx, code)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			// A required code missing from the catalog is a content bug,
			// not a reason to fail the whole sync.
			s.logger.Warn("required task code missing from catalog",
				zap.String("user_id", userID),
				zap.String("task_code", string(code)),
			)
			continue
		}
		reqID, err := s.resolveRequirementID(ctx, code)
		if err != nil {
			return nil, err
		}
		task := &domain.UserTask{
			UserID:        userID,
			TaskCode:      code,
			Title:         entry.Title,
			Description:   entry.Description,
			Status:        domain.TaskPending,
			Blocking:      entry.Blocking,
			RequirementID: reqID,
		}
		if err := s.tasks.CreateTask(ctx, task); err != nil {
			return nil, err
		}
	}

	return s.tasks.ListTasks(ctx, userID)
}

// resolveRequirementID finds the formalization requirement behind a task.
// An onboarding question declaring affects_task wins; the static fallback
// map covers tasks no question is linked to.
func (s *FormalizationService) resolveRequirementID(ctx context.Context, code domain.TaskCode) (string, error) {
	question, err := s.catalog.QuestionForTask(ctx, code)
	if err != nil {
		return "", err
	}
	if question != nil {
		if question.RequirementID != "" {
			return question.RequirementID, nil
		}
		if question.SetsFlag != "" {
			return string(question.SetsFlag), nil
		}
	}
	return domain.FallbackRequirementID[code], nil
}

// ============================================================
// Task status updates
// ============================================================

// UpdateTaskStatus changes one task's status and propagates the effects.
//
// Marking a task done also records the matching profile flag and mirrors
// the linked onboarding answer, so a later diagnosis agrees with the task
// list. Both propagations are best effort: the status change itself never
// rolls back. The diagnosis cache is always dropped.
func (s *FormalizationService) UpdateTaskStatus(ctx context.Context, userID string, code domain.TaskCode, req *domain.UpdateTaskStatusRequest) (*domain.UserTask, error) {
	ctx, span := formalizationTracer.Start(ctx, "FormalizationService.UpdateTaskStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("task.code", string(code)),
		attribute.String("task.status", req.Status),
	)

	newStatus := domain.TaskStatus(req.Status)
	if !domain.ValidTaskStatus(newStatus) {
		return nil, &domain.ErrValidation{
			Field:   "status",
			Message: fmt.Sprintf("invalid status %q: want pending, done or skipped", req.Status),
		}
	}

	existing, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	var target *domain.UserTask
	for i := range existing {
		if existing[i].TaskCode == code {
			target = &existing[i]
			break
		}
	}
	if target == nil {
		return nil, &domain.ErrNotFound{Resource: "task", ID: string(code)}
	}

	if err := s.tasks.UpdateTask(ctx, userID, code, map[string]any{
		"status": string(newStatus),
	}); err != nil {
		return nil, err
	}
	target.Status = newStatus

	if newStatus == domain.TaskDone {
		s.propagateDone(ctx, userID, code)

		input, err := s.mergedInput(ctx, userID)
		if err != nil {
			s.logger.Warn("merged input load for post-completion resync failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else if _, syncErr := s.SyncUserTasks(ctx, userID, input); syncErr != nil {
			s.logger.Warn("task resync after completion failed",
				zap.String("user_id", userID),
				zap.Error(syncErr),
			)
		}

		if s.pregen != nil {
			s.pregen.PregenerateForPending(userID)
		}
	}

	// Any status change can move the diagnosis, so the cache goes.
	if err := s.status.DeleteStatus(ctx, userID); err != nil {
		s.logger.Warn("failed to drop diagnosis cache",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	return target, nil
}

// propagateDone records the consequences of a completed task: the profile
// flag flips to true and the linked onboarding answer is mirrored. Failures
// are logged, not returned.
func (s *FormalizationService) propagateDone(ctx context.Context, userID string, code domain.TaskCode) {
	if flag, ok := domain.FlagForTask[code]; ok {
		if err := s.profiles.UpdateProfileFields(ctx, userID, map[string]any{
			string(flag): true,
		}); err != nil {
			s.logger.Warn("failed to propagate task flag to profile",
				zap.String("user_id", userID),
				zap.String("flag", string(flag)),
				zap.Error(err),
			)
		}
	}

	if questionID, ok := domain.QuestionIDForTask[code]; ok {
		answer := &domain.OnboardingAnswer{
			UserID:     userID,
			QuestionID: questionID,
			Value:      "true",
		}
		if err := s.answers.UpsertAnswer(ctx, answer); err != nil {
			s.logger.Warn("failed to mirror task completion into answers",
				zap.String("user_id", userID),
				zap.String("question_id", questionID),
				zap.Error(err),
			)
		}
	}
}

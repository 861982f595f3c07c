// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
)

// UserStore holds authentication identities keyed by phone.
type UserStore interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, updates map[string]any) error
}

// ProfileStore persists producer profiles (one per user).
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.ProducerProfile) (*domain.ProducerProfile, error)
	UpdateProfileFields(ctx context.Context, userID string, updates map[string]any) error
}

// QuestionStore persists the onboarding question catalog.
type QuestionStore interface {
	ListQuestions(ctx context.Context) ([]domain.OnboardingQuestion, error)
	UpsertQuestion(ctx context.Context, q *domain.OnboardingQuestion) error
}

// AnswerStore persists onboarding answers, one per (user, question).
type AnswerStore interface {
	ListAnswers(ctx context.Context, userID string) ([]domain.OnboardingAnswer, error)
	UpsertAnswer(ctx context.Context, ans *domain.OnboardingAnswer) error
}

// TaskCatalogStore persists the static task catalog.
type TaskCatalogStore interface {
	ListCatalog(ctx context.Context) ([]domain.TaskCatalogEntry, error)
	UpsertCatalogEntry(ctx context.Context, e *domain.TaskCatalogEntry) error
}

// TaskStore persists per-user formalization tasks.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]domain.UserTask, error)
	CreateTask(ctx context.Context, task *domain.UserTask) error
	UpdateTask(ctx context.Context, userID string, code domain.TaskCode, updates map[string]any) error
}

// StatusStore persists the cached formalization status snapshot.
type StatusStore interface {
	GetStatus(ctx context.Context, userID string) (*domain.FormalizationStatus, error)
	UpsertStatus(ctx context.Context, status *domain.FormalizationStatus) error
	DeleteStatus(ctx context.Context, userID string) error
}

// GuideStore persists generated formalization guides.
type GuideStore interface {
	GetGuide(ctx context.Context, userID, requirementID string) (*domain.FormalizationGuide, error)
	UpsertGuide(ctx context.Context, guide *domain.FormalizationGuide) error
}

// Generator is the LLM client. Prompt in, raw text out; callers own parsing
// and fallbacks.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

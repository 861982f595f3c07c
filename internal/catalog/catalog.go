// Package catalog serves the onboarding question catalog and the task
// catalog through a read-through cache.
//
// Both catalogs live in external storage and are owned by content editors,
// not by this service. The cache keeps hot reads off the database; an
// explicit Invalidate forces the next read to refetch after a reseed.
package catalog

import (
	"context"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/cache"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("catalog")

const (
	questionsKey = "catalog:questions"
	tasksKey     = "catalog:tasks"
)

// Catalog is the cached view over the question and task catalogs.
type Catalog struct {
	questions port.QuestionStore
	tasks     port.TaskCatalogStore

	questionCache *cache.InMemory[[]domain.OnboardingQuestion]
	taskCache     *cache.InMemory[[]domain.TaskCatalogEntry]

	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a Catalog backed by the given stores and caches.
func New(
	questions port.QuestionStore,
	tasks port.TaskCatalogStore,
	questionCache *cache.InMemory[[]domain.OnboardingQuestion],
	taskCache *cache.InMemory[[]domain.TaskCatalogEntry],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Catalog {
	return &Catalog{
		questions:     questions,
		tasks:         tasks,
		questionCache: questionCache,
		taskCache:     taskCache,
		metrics:       metrics,
		logger:        logger,
	}
}

// Questions returns the onboarding questions in display order.
func (c *Catalog) Questions(ctx context.Context) ([]domain.OnboardingQuestion, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Questions")
	defer span.End()

	if cached, ok := c.questionCache.Get(questionsKey); ok {
		c.metrics.IncrCacheHit("questions")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("questions")

	questions, err := c.questions.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	c.questionCache.Set(questionsKey, questions)
	return questions, nil
}

// Tasks returns the task templates in display order.
func (c *Catalog) Tasks(ctx context.Context) ([]domain.TaskCatalogEntry, error) {
	ctx, span := tracer.Start(ctx, "Catalog.Tasks")
	defer span.End()

	if cached, ok := c.taskCache.Get(tasksKey); ok {
		c.metrics.IncrCacheHit("tasks")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("tasks")

	entries, err := c.tasks.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}
	c.taskCache.Set(tasksKey, entries)
	return entries, nil
}

// TaskEntry returns the catalog template for one task code, or nil when the
// code is not in the catalog.
func (c *Catalog) TaskEntry(ctx context.Context, code domain.TaskCode) (*domain.TaskCatalogEntry, error) {
	entries, err := c.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Code == code {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// QuestionForTask returns the question that declares affects_task == code,
// or nil when no question is linked to the task.
func (c *Catalog) QuestionForTask(ctx context.Context, code domain.TaskCode) (*domain.OnboardingQuestion, error) {
	questions, err := c.Questions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].AffectsTask == code {
			return &questions[i], nil
		}
	}
	return nil, nil
}

// Invalidate drops both caches so the next read refetches from storage.
func (c *Catalog) Invalidate() {
	c.questionCache.Delete(questionsKey)
	c.taskCache.Delete(tasksKey)
	c.logger.Info("catalog caches invalidated")
}

package catalog

import (
	"bytes"
	"context"
	"embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.uber.org/zap"
)

// The seed CSVs are the initial catalog content. Seeding upserts by key,
// so running it again after a content edit is safe.
//
//go:embed seeds/questions.csv seeds/tasks.csv
var seedFS embed.FS

// Seed loads the embedded CSVs into storage and invalidates the caches.
// Called on startup and by the admin reseed endpoint.
func (c *Catalog) Seed(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Catalog.Seed")
	defer span.End()

	questions, err := loadQuestionSeeds()
	if err != nil {
		return fmt.Errorf("failed to load question seeds: %w", err)
	}
	for i := range questions {
		if err := c.questions.UpsertQuestion(ctx, &questions[i]); err != nil {
			return fmt.Errorf("failed to seed question %s: %w", questions[i].QuestionID, err)
		}
	}

	entries, err := loadTaskSeeds()
	if err != nil {
		return fmt.Errorf("failed to load task seeds: %w", err)
	}
	for i := range entries {
		if err := c.tasks.UpsertCatalogEntry(ctx, &entries[i]); err != nil {
			return fmt.Errorf("failed to seed task %s: %w", entries[i].Code, err)
		}
	}

	c.Invalidate()
	c.logger.Info("catalog seeded",
		zap.Int("questions", len(questions)),
		zap.Int("tasks", len(entries)),
	)
	return nil
}

func readSeedCSV(name string) ([][]string, error) {
	raw, err := seedFS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(bytes.NewReader(raw))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("seed file %s has no data rows", name)
	}
	// Drops the header row.
	return records[1:], nil
}

func loadQuestionSeeds() ([]domain.OnboardingQuestion, error) {
	records, err := readSeedCSV("seeds/questions.csv")
	if err != nil {
		return nil, err
	}

	questions := make([]domain.OnboardingQuestion, 0, len(records))
	for _, rec := range records {
		if len(rec) != 9 {
			return nil, fmt.Errorf("question row has %d columns, want 9", len(rec))
		}
		step, err := strconv.Atoi(rec[7])
		if err != nil {
			return nil, fmt.Errorf("invalid step for question %s: %w", rec[0], err)
		}
		order, err := strconv.Atoi(rec[8])
		if err != nil {
			return nil, fmt.Errorf("invalid order_index for question %s: %w", rec[0], err)
		}
		q := domain.OnboardingQuestion{
			QuestionID:    rec[0],
			Text:          rec[1],
			Type:          domain.QuestionType(rec[2]),
			RequirementID: rec[4],
			SetsFlag:      domain.ProfileFlag(rec[5]),
			AffectsTask:   domain.TaskCode(rec[6]),
			Step:          step,
			OrderIndex:    order,
		}
		if rec[3] != "" {
			q.Options = strings.Split(rec[3], "|")
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func loadTaskSeeds() ([]domain.TaskCatalogEntry, error) {
	records, err := readSeedCSV("seeds/tasks.csv")
	if err != nil {
		return nil, err
	}

	entries := make([]domain.TaskCatalogEntry, 0, len(records))
	for _, rec := range records {
		if len(rec) != 7 {
			return nil, fmt.Errorf("task row has %d columns, want 7", len(rec))
		}
		blocking, err := strconv.ParseBool(rec[4])
		if err != nil {
			return nil, fmt.Errorf("invalid blocking for task %s: %w", rec[0], err)
		}
		days, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("invalid estimated_time_days for task %s: %w", rec[0], err)
		}
		order, err := strconv.Atoi(rec[6])
		if err != nil {
			return nil, fmt.Errorf("invalid order_index for task %s: %w", rec[0], err)
		}
		entries = append(entries, domain.TaskCatalogEntry{
			Code:              domain.TaskCode(rec[0]),
			Title:             rec[1],
			Description:       rec[2],
			Why:               rec[3],
			Blocking:          blocking,
			EstimatedTimeDays: days,
			OrderIndex:        order,
		})
	}
	return entries, nil
}

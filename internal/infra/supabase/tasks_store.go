package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Task catalog + per-user task lists
// tables: task_catalog (key: code), user_tasks (key: user_id,task_code)
// ============================================================

type catalogRow struct {
	Code              string `json:"code"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Why               string `json:"why"`
	Blocking          bool   `json:"blocking"`
	EstimatedTimeDays int    `json:"estimated_time_days"`
	OrderIndex        int    `json:"order_index"`
}

func (r *catalogRow) toDomain() domain.TaskCatalogEntry {
	return domain.TaskCatalogEntry{
		Code:              domain.TaskCode(r.Code),
		Title:             r.Title,
		Description:       r.Description,
		Why:               r.Why,
		Blocking:          r.Blocking,
		EstimatedTimeDays: r.EstimatedTimeDays,
		OrderIndex:        r.OrderIndex,
	}
}

// ListCatalog returns every task template in display order.
func (c *Client) ListCatalog(ctx context.Context) ([]domain.TaskCatalogEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCatalog")
	defer span.End()

	body, err := c.getWithRetry(ctx, "task_catalog?order=order_index.asc")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/tasks", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []domain.TaskCatalogEntry{}, nil
	}

	var rows []catalogRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode task catalog: %w", err)
	}

	entries := make([]domain.TaskCatalogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

// UpsertCatalogEntry inserts or merges a task template (used by the seeder).
func (c *Client) UpsertCatalogEntry(ctx context.Context, e *domain.TaskCatalogEntry) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertCatalogEntry")
	defer span.End()

	data := map[string]any{
		"code":                string(e.Code),
		"title":               e.Title,
		"description":         e.Description,
		"why":                 e.Why,
		"blocking":            e.Blocking,
		"estimated_time_days": e.EstimatedTimeDays,
		"order_index":         e.OrderIndex,
	}
	if _, err := c.doUpsert(ctx, "task_catalog", "code", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/tasks", Err: err}
	}
	return nil
}

type taskRow struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	TaskCode      string `json:"task_code"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Blocking      bool   `json:"blocking"`
	RequirementID string `json:"requirement_id"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (r *taskRow) toDomain() domain.UserTask {
	t := domain.UserTask{
		ID:            r.ID,
		UserID:        r.UserID,
		TaskCode:      domain.TaskCode(r.TaskCode),
		Title:         r.Title,
		Description:   r.Description,
		Status:        domain.TaskStatus(r.Status),
		Blocking:      r.Blocking,
		RequirementID: r.RequirementID,
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	return t
}

// ListTasks returns every task row for the user, blocking tasks first.
func (c *Client) ListTasks(ctx context.Context, userID string) ([]domain.UserTask, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTasks")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("user_tasks?user_id=eq.%s&order=blocking.desc,created_at.asc", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/tasks", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []domain.UserTask{}, nil
	}

	var rows []taskRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode user tasks: %w", err)
	}

	tasks := make([]domain.UserTask, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toDomain())
	}
	return tasks, nil
}

// CreateTask inserts a new task row for the user. The (user_id, task_code)
// pair is unique so a concurrent resync merges instead of duplicating.
func (c *Client) CreateTask(ctx context.Context, task *domain.UserTask) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", task.UserID),
		attribute.String("task.code", string(task.TaskCode)),
	)

	now := time.Now().Format(time.RFC3339)
	data := map[string]any{
		"user_id":        task.UserID,
		"task_code":      string(task.TaskCode),
		"title":          task.Title,
		"description":    task.Description,
		"status":         string(task.Status),
		"blocking":       task.Blocking,
		"requirement_id": task.RequirementID,
		"created_at":     now,
		"updated_at":     now,
	}
	if _, err := c.doUpsert(ctx, "user_tasks", "user_id,task_code", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/tasks", Err: err}
	}
	return nil
}

// UpdateTask patches selected columns of one task row.
func (c *Client) UpdateTask(ctx context.Context, userID string, code domain.TaskCode, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("task.code", string(code)),
	)

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("user_tasks?user_id=eq.%s&task_code=eq.%s", userID, code)
	if err := c.doPatch(ctx, path, updates); err != nil {
		return &domain.ErrExternalService{Service: "supabase/tasks", Err: err}
	}
	return nil
}

package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Users (implements port.UserStore) — table: users
// ============================================================

type userRow struct {
	ID           string  `json:"id"`
	Phone        string  `json:"phone"`
	Name         string  `json:"name"`
	OTPHash      string  `json:"otp_hash"`
	OTPExpiresAt *string `json:"otp_expires_at"`
	CreatedAt    string  `json:"created_at"`
	LastLoginAt  *string `json:"last_login_at"`
}

func (r *userRow) toDomain() *domain.User {
	u := &domain.User{
		ID:      r.ID,
		Phone:   r.Phone,
		Name:    r.Name,
		OTPHash: r.OTPHash,
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	if r.OTPExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.OTPExpiresAt); err == nil {
			u.OTPExpiresAt = &t
		}
	}
	if r.LastLoginAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.LastLoginAt); err == nil {
			u.LastLoginAt = &t
		}
	}
	return u
}

// GetUserByPhone returns the user with the given phone, or nil if none exists.
func (c *Client) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByPhone")
	defer span.End()

	path := fmt.Sprintf("users?phone=eq.%s&limit=1", url.QueryEscape(phone))
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// GetUserByID returns the user with the given id.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("users?id=eq.%s&limit=1", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}

	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return rows[0].toDomain(), nil
}

// UpsertUser inserts or merges a user keyed by phone and returns the stored row.
func (c *Client) UpsertUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertUser")
	defer span.End()

	data := map[string]any{
		"id":       user.ID,
		"phone":    user.Phone,
		"name":     user.Name,
		"otp_hash": user.OTPHash,
	}
	if user.OTPExpiresAt != nil {
		data["otp_expires_at"] = user.OTPExpiresAt.Format(time.RFC3339)
	}

	body, err := c.doUpsert(ctx, "users", "phone", data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}

	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return user, nil
	}
	return rows[0].toDomain(), nil
}

// UpdateUser patches user fields by id.
func (c *Client) UpdateUser(ctx context.Context, userID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("users?id=eq.%s", userID)
	if err := c.doPatch(ctx, path, updates); err != nil {
		return &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	return nil
}

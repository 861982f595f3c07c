package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chatdomain "github.com/sertaodev/pnae-assistant-go/internal/chat/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Chat conversation state + message history
// tables: chat_conversations (key: user_id), chat_messages (append only)
// ============================================================

type conversationRow struct {
	UserID          string `json:"user_id"`
	State           string `json:"state"`
	CurrentTaskCode string `json:"current_task_code"`
	LastIntent      string `json:"last_intent"`
	UpdatedAt       string `json:"updated_at"`
}

func (r *conversationRow) toDomain() *chatdomain.Conversation {
	conv := &chatdomain.Conversation{
		UserID:          r.UserID,
		State:           chatdomain.ChatState(r.State),
		CurrentTaskCode: domain.TaskCode(r.CurrentTaskCode),
		LastIntent:      chatdomain.Intent(r.LastIntent),
	}
	conv.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	return conv
}

// GetConversation returns the stored conversation, or nil when the user
// has never chatted.
func (c *Client) GetConversation(ctx context.Context, userID string) (*chatdomain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConversation")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("chat_conversations?user_id=eq.%s", userID)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/chat", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []conversationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// UpsertConversation stores or replaces the conversation state.
func (c *Client) UpsertConversation(ctx context.Context, conv *chatdomain.Conversation) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertConversation")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", conv.UserID),
		attribute.String("chat.state", string(conv.State)),
	)

	data := map[string]any{
		"user_id":           conv.UserID,
		"state":             string(conv.State),
		"current_task_code": string(conv.CurrentTaskCode),
		"last_intent":       string(conv.LastIntent),
		"updated_at":        conv.UpdatedAt.Format(time.RFC3339),
	}
	if _, err := c.doUpsert(ctx, "chat_conversations", "user_id", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/chat", Err: err}
	}
	return nil
}

type messageRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// AppendMessage inserts one message into the history.
func (c *Client) AppendMessage(ctx context.Context, msg *chatdomain.Message) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", msg.UserID),
		attribute.String("chat.role", msg.Role),
	)

	data := map[string]any{
		"user_id":    msg.UserID,
		"role":       msg.Role,
		"content":    msg.Content,
		"created_at": msg.CreatedAt.Format(time.RFC3339),
	}
	if _, err := c.doPost(ctx, "chat_messages", data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/chat", Err: err}
	}
	return nil
}

// ListMessages returns the latest messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, userID string, limit int) ([]chatdomain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if limit <= 0 {
		limit = 50
	}
	// Fetches newest first, then reverses into chronological order.
	path := fmt.Sprintf("chat_messages?user_id=eq.%s&order=created_at.desc&limit=%d", userID, limit)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/chat", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []chatdomain.Message{}, nil
	}

	var rows []messageRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode chat messages: %w", err)
	}

	messages := make([]chatdomain.Message, len(rows))
	for i, r := range rows {
		m := chatdomain.Message{
			ID:      r.ID,
			UserID:  r.UserID,
			Role:    r.Role,
			Content: r.Content,
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
		messages[len(rows)-1-i] = m
	}
	return messages, nil
}

// Package port — chat_port.go define as interfaces (ports) do módulo de chat.
//
// Seguindo a arquitetura hexagonal, o ChatService depende dessas interfaces
// e NÃO das implementações concretas (Supabase, cliente LLM). Isso facilita
// testes e troca de implementação.
package port

import (
	"context"

	chatdomain "github.com/sertaodev/pnae-assistant-go/internal/chat/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
)

// ConversationStore persiste o estado da conversa e o histórico de mensagens.
// A implementação concreta vive em internal/infra/supabase.
type ConversationStore interface {
	// GetConversation retorna a conversa do usuário, ou nil se nunca conversou.
	GetConversation(ctx context.Context, userID string) (*chatdomain.Conversation, error)

	// UpsertConversation cria ou substitui o estado da conversa do usuário.
	UpsertConversation(ctx context.Context, conv *chatdomain.Conversation) error

	// AppendMessage adiciona uma mensagem ao histórico.
	AppendMessage(ctx context.Context, msg *chatdomain.Message) error

	// ListMessages retorna as últimas mensagens em ordem cronológica.
	ListMessages(ctx context.Context, userID string, limit int) ([]chatdomain.Message, error)
}

// TaskReader expõe as operações de tarefas que o chat guiado precisa.
// Implementado pelo FormalizationService do módulo principal.
type TaskReader interface {
	// ListTasks retorna a lista de tarefas sincronizada do usuário.
	ListTasks(ctx context.Context, userID string) ([]domain.UserTask, error)

	// UpdateTaskStatus marca uma tarefa com o status dado e propaga os efeitos.
	UpdateTaskStatus(ctx context.Context, userID string, code domain.TaskCode, req *domain.UpdateTaskStatusRequest) (*domain.UserTask, error)
}

// Generator é o cliente de IA usado na conversa livre (v1).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

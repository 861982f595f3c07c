// Package domain — chat.go define os tipos do chat guiado de formalização.
//
// O chat tem duas rotas:
//
//	POST /v1/ai/chat/message     → conversa livre com a IA (v1)
//	POST /v1/ai/chat/message/v2  → conversa guiada por máquina de estados (v2)
//
// A v2 é a rota principal do app: ela acompanha o produtor tarefa por
// tarefa ("o que falta?", explicação, confirmação de conclusão) e
// mantém o estado da conversa persistido entre mensagens.
package domain

import (
	"time"

	maindomain "github.com/sertaodev/pnae-assistant-go/internal/domain"
)

// ============================================================
// Estados da conversa — máquina de estados da v2
// ============================================================

// ChatState é o estado atual da conversa guiada.
type ChatState string

const (
	// StateIdle — sem tarefa em foco; aguardando o produtor perguntar algo.
	StateIdle ChatState = "idle"

	// StateExplainingTask — o assistente acabou de explicar uma tarefa pendente.
	StateExplainingTask ChatState = "explaining_task"

	// StateWaitingConfirmation — o assistente perguntou se o produtor concluiu a tarefa.
	StateWaitingConfirmation ChatState = "waiting_confirmation"

	// StateTaskCompleted — o produtor confirmou a conclusão; tarefa marcada como feita.
	StateTaskCompleted ChatState = "task_completed"

	// StateError — transição inválida ou falha interna; a próxima mensagem recomeça.
	StateError ChatState = "error"
)

// allowedTransitions define quais transições de estado são válidas.
// Qualquer transição fora dessa tabela leva a conversa para StateError.
var allowedTransitions = map[ChatState][]ChatState{
	StateIdle:                {StateExplainingTask, StateError},
	StateExplainingTask:      {StateWaitingConfirmation, StateTaskCompleted, StateIdle, StateError},
	StateWaitingConfirmation: {StateTaskCompleted, StateExplainingTask, StateIdle, StateError},
	StateTaskCompleted:       {StateIdle, StateExplainingTask, StateError},
	StateError:               {StateIdle, StateExplainingTask},
}

// CanTransition retorna true se a transição from→to é permitida.
// Permanecer no mesmo estado é sempre permitido.
func CanTransition(from, to ChatState) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ============================================================
// Intenções — classificação por palavras-chave
// ============================================================

// Intent é a intenção detectada na mensagem do produtor.
type Intent string

const (
	// IntentAskWhatMissing — "o que falta?", "o que preciso fazer?"
	IntentAskWhatMissing Intent = "ask_what_missing"

	// IntentConfirmTask — "sim", "já fiz", "completei"
	IntentConfirmTask Intent = "confirm_task"

	// IntentGeneral — qualquer outra mensagem
	IntentGeneral Intent = "general"
)

// MessageType classifica a resposta da v2 para o app renderizar
// (ícone, botões, destaque de erro).
type MessageType string

const (
	MessageTypeInfo     MessageType = "info"
	MessageTypeQuestion MessageType = "question"
	MessageTypeAction   MessageType = "action"
	MessageTypeError    MessageType = "error"
)

// MessageTypeForState deriva o tipo da mensagem a partir do estado
// final da conversa.
func MessageTypeForState(state ChatState) MessageType {
	switch state {
	case StateError:
		return MessageTypeError
	case StateWaitingConfirmation:
		return MessageTypeQuestion
	case StateExplainingTask:
		return MessageTypeAction
	default:
		return MessageTypeInfo
	}
}

// ============================================================
// Conversa persistida — tabela chat_conversations
// ============================================================

// Conversation é o estado persistido da conversa de um produtor.
// Uma linha por usuário; sobrevive entre mensagens e sessões.
type Conversation struct {
	UserID          string              `json:"user_id"`
	State           ChatState           `json:"state"`
	CurrentTaskCode maindomain.TaskCode `json:"current_task_code,omitempty"`
	LastIntent      Intent              `json:"last_intent,omitempty"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Message é uma mensagem individual do histórico da conversa.
// Role segue a convenção de chat LLM: "user" ou "assistant".
type Message struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Request/Response das rotas de chat
// ============================================================

// MessageRequest é o body de POST /v1/ai/chat/message e /message/v2.
type MessageRequest struct {
	Message string `json:"message"`
}

// ActionType identifica o que o app deve executar ao tocar na ação.
type ActionType string

const (
	// ActionMarkTaskDone — marcar a tarefa indicada em TaskCode como concluída.
	ActionMarkTaskDone ActionType = "mark_task_done"

	// ActionGoToScreen — navegar para a tela indicada em Screen.
	ActionGoToScreen ActionType = "go_to_screen"

	// ActionOpenGuide — abrir o guia do requisito indicado em RequirementID.
	ActionOpenGuide ActionType = "open_guide"
)

// SuggestedAction é uma ação sugerida que o app pode executar diretamente.
// Apenas o campo correspondente ao tipo é preenchido.
type SuggestedAction struct {
	Type          ActionType          `json:"type"`
	TaskCode      maindomain.TaskCode `json:"task_code,omitempty"`
	Screen        string              `json:"screen,omitempty"`
	RequirementID string              `json:"requirement_id,omitempty"`
}

// ConversationState é o estado da conversa devolvido na resposta da v2.
type ConversationState struct {
	ChatState       ChatState           `json:"chat_state"`
	CurrentTaskCode maindomain.TaskCode `json:"current_task_code,omitempty"`
}

// MessageResponse é a resposta das rotas de chat.
//
// Na v2, ConversationState espelha a conversa persistida após o
// processamento da mensagem; na v1 ele fica vazio.
type MessageResponse struct {
	Reply             string             `json:"reply"`
	ConversationState *ConversationState `json:"conversation_state,omitempty"`
	MessageType       MessageType        `json:"message_type,omitempty"`
	SuggestedActions  []SuggestedAction  `json:"suggested_actions,omitempty"`

	// Fallback indica que a resposta veio do texto padrão
	// porque a chamada à IA falhou (somente na v1).
	Fallback bool `json:"fallback,omitempty"`
}

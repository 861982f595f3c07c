// Package service — chat_service.go implementa o ChatService.
//
// ============================================================
// ARQUITETURA — Máquina de Estados para o chat guiado
// ============================================================
//
// O ChatService é o orquestrador das rotas de chat:
//
//	ProcessMessage   (v1) → conversa livre com a IA, com fallback local
//	ProcessMessageV2 (v2) → conversa guiada por máquina de estados
//
// Fluxo da v2:
//  1. Handler recebe POST /v1/ai/chat/message/v2 com body {"message": "..."}
//  2. ChatService carrega (ou cria) a conversa persistida do usuário
//  3. Detecta a intenção por palavras-chave (o que falta? / sim, já fiz / geral)
//  4. Avança a máquina de estados e monta a resposta
//  5. Persiste o novo estado e o histórico de mensagens
//
// Toda transição passa por domain.CanTransition. Uma transição fora da
// tabela leva a conversa para o estado de erro, e a próxima mensagem
// recomeça do zero.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/chat/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/chat/port"
	maindomain "github.com/sertaodev/pnae-assistant-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// chatTracer é o tracer OpenTelemetry para o módulo de chat.
var chatTracer = otel.Tracer("chat/service")

// fallbackReply é a resposta padrão da v1 quando a IA está indisponível.
const fallbackReply = "Desculpe, não consegui falar com o assistente agora. " +
	"Você pode tentar de novo em instantes, ou perguntar \"o que falta?\" " +
	"para ver suas pendências de formalização."

// ChatService orquestra o chat livre (v1) e o chat guiado (v2).
type ChatService struct {
	conversations port.ConversationStore
	tasks         port.TaskReader
	generator     port.Generator
	logger        *zap.Logger
}

// NewChatService cria o ChatService com as dependências injetadas.
func NewChatService(
	conversations port.ConversationStore,
	tasks port.TaskReader,
	generator port.Generator,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		tasks:         tasks,
		generator:     generator,
		logger:        logger,
	}
}

// ============================================================
// ProcessMessage — conversa livre (v1)
// ============================================================

// ProcessMessage envia a mensagem do produtor para a IA e devolve a resposta.
//
// A v1 não mexe na máquina de estados: é um chat aberto sobre formalização.
// Se a IA falhar, devolve o texto de fallback com Fallback=true em vez de erro.
func (s *ChatService) ProcessMessage(ctx context.Context, userID string, req *domain.MessageRequest) (*domain.MessageResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessage")
	defer span.End()

	s.logger.Info("chat message received",
		zap.String("user_id", userID),
		zap.Int("message_length", len(req.Message)),
	)

	s.appendHistory(ctx, userID, "user", req.Message)

	prompt := buildFreeChatPrompt(req.Message)
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		// IA fora do ar não derruba o chat: responde o fallback local.
		s.logger.Warn("generator call failed, using fallback reply",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		s.appendHistory(ctx, userID, "assistant", fallbackReply)
		return &domain.MessageResponse{Reply: fallbackReply, Fallback: true}, nil
	}

	s.appendHistory(ctx, userID, "assistant", answer)
	return &domain.MessageResponse{Reply: answer}, nil
}

// buildFreeChatPrompt monta o prompt da v1 com o papel do assistente.
func buildFreeChatPrompt(message string) string {
	return "Você é um assistente que ajuda pequenos agricultores familiares " +
		"brasileiros a se formalizarem para vender ao PNAE (Programa Nacional de " +
		"Alimentação Escolar). Responda em português simples e direto, em poucos " +
		"parágrafos, sem jargão jurídico.\n\nPergunta do produtor: " + message
}

// ============================================================
// ProcessMessageV2 — conversa guiada por máquina de estados
// ============================================================

// ProcessMessageV2 processa a mensagem dentro da máquina de estados.
//
// O estado persistido da conversa sempre espelha o estado devolvido
// na resposta. Intenções reconhecidas:
//
//	ask_what_missing → explica a primeira tarefa pendente
//	confirm_task     → marca a tarefa em foco como concluída
//	general          → depende do estado atual
func (s *ChatService) ProcessMessageV2(ctx context.Context, userID string, req *domain.MessageRequest) (*domain.MessageResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessageV2")
	defer span.End()

	conv, err := s.conversations.GetConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &domain.Conversation{UserID: userID, State: domain.StateIdle}
	}

	intent := detectIntent(req.Message)
	s.logger.Info("guided chat message",
		zap.String("user_id", userID),
		zap.String("state", string(conv.State)),
		zap.String("intent", string(intent)),
	)

	s.appendHistory(ctx, userID, "user", req.Message)

	// Conversa em erro: a próxima mensagem sempre recomeça do zero.
	if conv.State == domain.StateError {
		conv.State = domain.StateIdle
		conv.CurrentTaskCode = ""
	}

	var resp *domain.MessageResponse
	switch intent {
	case domain.IntentAskWhatMissing:
		resp, err = s.handleWhatMissing(ctx, userID, conv)
	case domain.IntentConfirmTask:
		resp, err = s.handleConfirmation(ctx, userID, conv)
	default:
		resp = s.handleGeneral(conv)
	}
	if err != nil {
		return nil, err
	}

	conv.LastIntent = intent
	conv.UpdatedAt = time.Now()
	if err := s.conversations.UpsertConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, userID, "assistant", resp.Reply)
	resp.ConversationState = &domain.ConversationState{
		ChatState:       conv.State,
		CurrentTaskCode: conv.CurrentTaskCode,
	}
	resp.MessageType = domain.MessageTypeForState(conv.State)
	return resp, nil
}

// handleWhatMissing explica a primeira tarefa pendente do produtor.
func (s *ChatService) handleWhatMissing(ctx context.Context, userID string, conv *domain.Conversation) (*domain.MessageResponse, error) {
	tasks, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := firstPending(tasks)
	if next == nil {
		// Nada pendente: volta (ou permanece) em idle.
		if !s.transition(conv, domain.StateIdle) {
			return s.errorReply(conv), nil
		}
		conv.CurrentTaskCode = ""
		return &domain.MessageResponse{
			Reply: "Boa notícia! Você não tem nenhuma pendência no momento. " +
				"Todas as suas tarefas de formalização estão concluídas ou não se aplicam a você.",
		}, nil
	}

	if !s.transition(conv, domain.StateExplainingTask) {
		return s.errorReply(conv), nil
	}
	conv.CurrentTaskCode = next.TaskCode

	reply := fmt.Sprintf("Sua próxima pendência é: %s.\n\n%s\n\nQuando terminar, me avise que eu marco como concluída.",
		next.Title, next.Description)

	// mark_task_done só é sugerido para a tarefa pendente em foco.
	actions := []domain.SuggestedAction{
		{Type: domain.ActionMarkTaskDone, TaskCode: next.TaskCode},
	}
	if next.RequirementID != "" {
		actions = append(actions, domain.SuggestedAction{
			Type:          domain.ActionOpenGuide,
			RequirementID: next.RequirementID,
		})
	}
	actions = append(actions, domain.SuggestedAction{
		Type:   domain.ActionGoToScreen,
		Screen: "tasks",
	})

	return &domain.MessageResponse{
		Reply:            reply,
		SuggestedActions: actions,
	}, nil
}

// handleConfirmation marca a tarefa em foco como concluída.
func (s *ChatService) handleConfirmation(ctx context.Context, userID string, conv *domain.Conversation) (*domain.MessageResponse, error) {
	// Confirmação sem tarefa em foco não tem o que concluir.
	if conv.CurrentTaskCode == "" {
		if !s.transition(conv, domain.StateIdle) {
			return s.errorReply(conv), nil
		}
		return &domain.MessageResponse{
			Reply: "Que bom! Mas não temos nenhuma tarefa em andamento agora. " +
				"Pergunte \"o que falta?\" para ver suas pendências.",
		}, nil
	}

	tasks, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := findTask(tasks, conv.CurrentTaskCode)
	if current == nil || current.Status != maindomain.TaskPending {
		// Tarefa já concluída (ou saiu da lista): segue em frente.
		if !s.transition(conv, domain.StateIdle) {
			return s.errorReply(conv), nil
		}
		conv.CurrentTaskCode = ""
		return &domain.MessageResponse{
			Reply: "Essa tarefa já estava resolvida. Pergunte \"o que falta?\" para ver a próxima.",
		}, nil
	}

	if !s.transition(conv, domain.StateTaskCompleted) {
		return s.errorReply(conv), nil
	}

	// A decisão do produtor fica registrada mesmo se a escrita falhar.
	updateReq := &maindomain.UpdateTaskStatusRequest{Status: string(maindomain.TaskDone)}
	if _, err := s.tasks.UpdateTaskStatus(ctx, userID, conv.CurrentTaskCode, updateReq); err != nil {
		s.logger.Error("failed to mark task done from chat",
			zap.String("user_id", userID),
			zap.String("task_code", string(conv.CurrentTaskCode)),
			zap.Error(err),
		)
		return &domain.MessageResponse{
			Reply: fmt.Sprintf("Anotei que você concluiu \"%s\", mas não consegui salvar agora. "+
				"Vou tentar de novo; se a tarefa continuar pendente, marque pela lista de tarefas.", current.Title),
		}, nil
	}

	conv.CurrentTaskCode = ""
	return &domain.MessageResponse{
		Reply: fmt.Sprintf("Parabéns! Marquei \"%s\" como concluída. 🎉\n\n"+
			"Quer saber qual é a próxima? É só perguntar \"o que falta?\".", current.Title),
		SuggestedActions: []domain.SuggestedAction{
			{Type: domain.ActionGoToScreen, Screen: "tasks"},
		},
	}, nil
}

// handleGeneral responde mensagens sem intenção reconhecida, conforme o estado.
func (s *ChatService) handleGeneral(conv *domain.Conversation) *domain.MessageResponse {
	switch conv.State {
	case domain.StateExplainingTask:
		// Depois da explicação, pergunta se a tarefa foi concluída.
		if !s.transition(conv, domain.StateWaitingConfirmation) {
			return s.errorReply(conv)
		}
		return &domain.MessageResponse{
			Reply: "Entendi. Você já conseguiu concluir essa tarefa? Responda \"sim\" que eu marco para você.",
			SuggestedActions: []domain.SuggestedAction{
				{Type: domain.ActionGoToScreen, Screen: "tasks"},
			},
		}

	case domain.StateWaitingConfirmation:
		// Continua aguardando a confirmação.
		return &domain.MessageResponse{
			Reply: "Sem pressa! Quando terminar a tarefa, é só me responder \"sim\" ou \"já fiz\".",
		}

	case domain.StateTaskCompleted:
		if !s.transition(conv, domain.StateIdle) {
			return s.errorReply(conv)
		}
		conv.CurrentTaskCode = ""
		return &domain.MessageResponse{
			Reply: "Seguimos juntos! Pergunte \"o que falta?\" quando quiser ver sua próxima pendência.",
		}

	default:
		// idle: apresenta o que o chat guiado sabe fazer.
		return &domain.MessageResponse{
			Reply: "Olá! Eu te acompanho na formalização para vender ao PNAE. " +
				"Pergunte \"o que falta?\" para ver suas pendências, ou use o chat livre para tirar dúvidas.",
			SuggestedActions: []domain.SuggestedAction{
				{Type: domain.ActionGoToScreen, Screen: "tasks"},
			},
		}
	}
}

// transition tenta mover a conversa para o estado dado.
// Transição proibida derruba a conversa para StateError e retorna false.
func (s *ChatService) transition(conv *domain.Conversation, to domain.ChatState) bool {
	if !domain.CanTransition(conv.State, to) {
		s.logger.Warn("invalid chat state transition",
			zap.String("user_id", conv.UserID),
			zap.String("from", string(conv.State)),
			zap.String("to", string(to)),
		)
		conv.State = domain.StateError
		return false
	}
	conv.State = to
	return true
}

// errorReply monta a resposta quando a conversa cai em estado de erro.
func (s *ChatService) errorReply(conv *domain.Conversation) *domain.MessageResponse {
	conv.CurrentTaskCode = ""
	return &domain.MessageResponse{
		Reply: "Ops, me perdi na conversa. Vamos recomeçar: pergunte \"o que falta?\" " +
			"para ver suas pendências de formalização.",
	}
}

// appendHistory grava uma mensagem no histórico. Falha de escrita não
// interrompe o fluxo da conversa.
func (s *ChatService) appendHistory(ctx context.Context, userID, role, content string) {
	msg := &domain.Message{
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.conversations.AppendMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to append chat message",
			zap.String("user_id", userID),
			zap.String("role", role),
			zap.Error(err),
		)
	}
}

// ============================================================
// detectIntent — detecção simples de intenção por keywords
// ============================================================

// askKeywords são frases que indicam "o que falta?".
var askKeywords = []string{
	"o que falta", "o que preciso", "o que ainda falta",
	"o que devo fazer", "quais documentos", "quais pendências",
	"quais pendencias", "próxima tarefa", "proxima tarefa",
	"o que está faltando", "o que esta faltando",
}

// confirmPhrases casam por substring (frases com mais de uma palavra).
var confirmPhrases = []string{
	"já fiz", "ja fiz", "já consegui", "ja consegui",
	"está feito", "esta feito", "tá feito", "ta feito",
	"já terminei", "ja terminei", "já concluí", "ja conclui",
}

// confirmWords casam palavra a palavra, para evitar falsos positivos
// ("sim" não pode casar dentro de "simples").
var confirmWords = []string{
	"sim", "feito", "completei", "concluí", "conclui",
	"pronto", "terminei", "consegui", "finalizei",
}

// detectIntent analisa a mensagem e retorna a intenção detectada.
func detectIntent(message string) domain.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))

	for _, kw := range askKeywords {
		if strings.Contains(lower, kw) {
			return domain.IntentAskWhatMissing
		}
	}

	for _, phrase := range confirmPhrases {
		if strings.Contains(lower, phrase) {
			return domain.IntentConfirmTask
		}
	}

	words := strings.Fields(strings.Trim(lower, "!?.,"))
	for _, w := range words {
		w = strings.Trim(w, "!?.,")
		for _, kw := range confirmWords {
			if w == kw {
				return domain.IntentConfirmTask
			}
		}
	}

	return domain.IntentGeneral
}

// ============================================================
// helpers de tarefas
// ============================================================

// firstPending retorna a primeira tarefa pendente da lista (bloqueantes
// vêm primeiro pela ordenação do store), ou nil se não houver.
func firstPending(tasks []maindomain.UserTask) *maindomain.UserTask {
	for i := range tasks {
		if tasks[i].Status == maindomain.TaskPending {
			return &tasks[i]
		}
	}
	return nil
}

// findTask localiza a tarefa com o código dado.
func findTask(tasks []maindomain.UserTask, code maindomain.TaskCode) *maindomain.UserTask {
	for i := range tasks {
		if tasks[i].TaskCode == code {
			return &tasks[i]
		}
	}
	return nil
}

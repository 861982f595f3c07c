// Package handler — chat_handler.go implementa os handlers das rotas
// POST /v1/ai/chat/message e POST /v1/ai/chat/message/v2.
//
// ============================================================
// DIFERENÇA ENTRE AS ROTAS DE CHAT
// ============================================================
//
// POST /v1/ai/chat/message     →  chat livre (v1)
//   - Recebe body JSON: {"message": "..."}
//   - Manda o prompt pra IA e devolve a resposta
//   - Se a IA falhar, devolve o texto de fallback com "fallback": true
//
// POST /v1/ai/chat/message/v2  →  chat guiado (v2)
//   - Máquina de estados: explica tarefas pendentes e marca conclusões
//   - A resposta inclui o estado da conversa e ações sugeridas
//
// Ambas exigem autenticação JWT: o user_id vem do token, nunca da URL.
// Usamos POST porque proxies (Railway, CloudFlare) removem o body de
// requisições GET, causando erro 400/500 em produção.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sertaodev/pnae-assistant-go/internal/chat/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/chat/service"
	maindomain "github.com/sertaodev/pnae-assistant-go/internal/domain"
	mainhandler "github.com/sertaodev/pnae-assistant-go/internal/handler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer é o tracer OpenTelemetry para o módulo chat/handler.
var tracer = otel.Tracer("chat/handler")

// MessageHandler retorna o http.HandlerFunc do chat livre (v1).
//
// Request:
//
//	Content-Type: application/json
//	Body: {"message": "Como tiro minha DAP?"}
//
// Response (200 OK):
//
//	{"reply": "Para emitir sua DAP/CAF você precisa..."}
//
// O handler é fino: valida o body e delega pro ChatService.
func MessageHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/chat/message")
		defer span.End()

		userID, ok := mainhandler.UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		req, ok := decodeMessage(w, r)
		if !ok {
			return
		}

		resp, err := chatSvc.ProcessMessage(ctx, userID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MessageV2Handler retorna o http.HandlerFunc do chat guiado (v2).
//
// Response (200 OK):
//
//	{
//	  "reply": "Sua próxima pendência é: ...",
//	  "conversation_state": {
//	    "chat_state": "explaining_task",
//	    "current_task_code": "HAS_FAMILY_FARMER_REGISTRATION"
//	  },
//	  "message_type": "action",
//	  "suggested_actions": [
//	    {"type": "mark_task_done", "task_code": "HAS_FAMILY_FARMER_REGISTRATION"},
//	    {"type": "open_guide", "requirement_id": "dap_caf"}
//	  ]
//	}
func MessageV2Handler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/chat/message/v2")
		defer span.End()

		userID, ok := mainhandler.UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		span.SetAttributes(attribute.String("user.id", userID))

		req, ok := decodeMessage(w, r)
		if !ok {
			return
		}

		resp, err := chatSvc.ProcessMessageV2(ctx, userID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeMessage decodifica e valida o body {"message": "..."}.
func decodeMessage(w http.ResponseWriter, r *http.Request) (*domain.MessageRequest, bool) {
	var req domain.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: expected {\"message\": \"your message\"}")
		return nil, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	return &req, true
}

// ============================================================
// Helpers — funções utilitárias do chat handler
// ============================================================

// writeJSON serializa data como JSON e escreve na response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError escreve uma resposta de erro padronizada.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError mapeia erros de domínio para HTTP status codes.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch e := err.(type) {
	case *maindomain.ErrExternalService:
		logger.Error("external service error", zap.String("service", e.Service), zap.Error(e.Err))
		writeError(w, http.StatusBadGateway, "external service unavailable: "+e.Service)
	case *maindomain.ErrNotFound:
		writeError(w, http.StatusNotFound, e.Error())
	case *maindomain.ErrValidation:
		writeError(w, http.StatusUnprocessableEntity, e.Error())
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

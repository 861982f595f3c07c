package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 4. Formalização
// ============================================================

func formalizationStatusHandler(formSvc *service.FormalizationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/formalization/status")
		defer span.End()

		userID, ok := UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		status, err := formSvc.GetOrCalculateStatus(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func listTasksHandler(formSvc *service.FormalizationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/formalization/tasks")
		defer span.End()

		userID, ok := UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		tasks, err := formSvc.ListTasks(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	}
}

func regenerateTasksHandler(formSvc *service.FormalizationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/formalization/tasks/regenerate")
		defer span.End()

		userID, ok := UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		tasks, err := formSvc.RegenerateTasks(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	}
}

func updateTaskStatusHandler(formSvc *service.FormalizationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/formalization/tasks/{taskCode}")
		defer span.End()

		userID, ok := UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		taskCode := chi.URLParam(r, "taskCode")

		var req domain.UpdateTaskStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		task, err := formSvc.UpdateTaskStatus(ctx, userID, domain.TaskCode(taskCode), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, task)
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 5. Guias de formalização
// ============================================================

func generateGuideHandler(guideSvc *service.GuideService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ai/guides")
		defer span.End()

		userID, ok := UserIDFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req domain.GenerateGuideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		guide, err := guideSvc.GenerateGuide(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, guide)
	}
}

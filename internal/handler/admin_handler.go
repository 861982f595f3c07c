package handler

import (
	"net/http"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/jobs"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 6. Administração
// ============================================================

func reseedCatalogHandler(cat *catalog.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/catalog/reseed")
		defer span.End()

		if err := cat.Seed(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Catálogo atualizado com sucesso"})
	}
}

func listJobsHandler(queue *jobs.Queue, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/admin/jobs")
		defer span.End()

		writeJSON(w, http.StatusOK, map[string]any{"jobs": queue.List()})
	}
}

func getJobHandler(queue *jobs.Queue, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/admin/jobs/{jobID}")
		defer span.End()

		job := queue.Get(chi.URLParam(r, "jobID"))
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		writeJSON(w, http.StatusOK, job)
	}
}

func usageMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/admin/metrics/usage")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.GetUsageSnapshot())
	}
}

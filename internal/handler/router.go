package handler

import (
	"net/http"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/jobs"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps carries everything the router needs. Chat handlers are injected as
// plain http.HandlerFunc so the chat package can depend on this one for
// auth context extraction without an import cycle.
type Deps struct {
	Auth          *service.AuthService
	Producers     *service.ProducerService
	Onboarding    *service.OnboardingService
	Formalization *service.FormalizationService
	Guides        *service.GuideService
	Catalog       *catalog.Catalog
	Jobs          *jobs.Queue
	ChatMessage   http.HandlerFunc
	ChatMessageV2 http.HandlerFunc
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract defined for the PNAE Assistant frontend.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Catalog, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. 🔐 Autenticação
		// POST /v1/auth/start
		// POST /v1/auth/verify
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			if d.Auth == nil {
				r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusServiceUnavailable, "auth service unavailable: Supabase not configured")
				}))
				return
			}
			r.Post("/start", authStartHandler(d.Auth, logger))
			r.Post("/verify", authVerifyHandler(d.Auth, logger))
		})

		if d.Auth == nil {
			return
		}

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(d.Auth, logger))

			// =============================================
			// 2. 👤 Perfil do produtor
			// =============================================
			r.Get("/producers/profile", getProfileHandler(d.Producers, logger))
			r.Put("/producers/profile", upsertProfileHandler(d.Producers, logger))

			// =============================================
			// 3. 📋 Onboarding
			// =============================================
			r.Get("/onboarding/questions", listQuestionsHandler(d.Onboarding, logger))
			r.Post("/onboarding/answers", saveAnswerHandler(d.Onboarding, logger))
			r.Get("/onboarding/status", onboardingStatusHandler(d.Onboarding, logger))
			r.Get("/onboarding/summary", onboardingSummaryHandler(d.Onboarding, logger))

			// =============================================
			// 4. ✅ Formalização
			// =============================================
			r.Get("/formalization/status", formalizationStatusHandler(d.Formalization, logger))
			r.Get("/formalization/tasks", listTasksHandler(d.Formalization, logger))
			r.Post("/formalization/tasks/regenerate", regenerateTasksHandler(d.Formalization, logger))
			r.Patch("/formalization/tasks/{taskCode}", updateTaskStatusHandler(d.Formalization, logger))

			// =============================================
			// 5. 🤖 Assistente IA
			// =============================================
			r.Post("/ai/chat/message", d.ChatMessage)
			r.Post("/ai/chat/message/v2", d.ChatMessageV2)
			r.Post("/ai/guides", generateGuideHandler(d.Guides, logger))

			// =============================================
			// 6. 🛠 Administração
			// =============================================
			r.Post("/admin/catalog/reseed", reseedCatalogHandler(d.Catalog, logger))
			r.Get("/admin/jobs", listJobsHandler(d.Jobs, logger))
			r.Get("/admin/jobs/{jobID}", getJobHandler(d.Jobs, logger))
			r.Get("/admin/metrics/usage", usageMetricsHandler(d.Metrics, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(cat *catalog.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "pnae-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if cat != nil {
			start := time.Now()
			_, err := cat.Tasks(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("healthz: catalog probe failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

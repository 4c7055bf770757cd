package handler

import (
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles what the router exposes. Without Auth the whole /v1
// tree answers 503.
type Services struct {
	Auth          *service.AuthService
	Connections   *service.ConnectionService
	Pairing       *service.PairingService
	Groups        *service.GroupService
	Messages      *service.MessageService
	Notifications *service.NotificationService
	Dashboard     *service.DashboardService
	Admin         *service.AdminService
	Probes        []HealthProbe
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Probes, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc.Auth == nil {
			r.HandleFunc("/*", unavailableHandler())
			return
		}

		// =============================================
		// 1. Autenticação
		// =============================================
		r.Post("/auth/login", authLoginHandler(svc.Auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))
			r.Get("/me", meHandler())

			// =============================================
			// 2. Empresa (tenant)
			// =============================================
			r.Group(func(r chi.Router) {
				r.Use(RequireCompany)
				mountConnections(r, svc, logger)
				mountGroups(r, svc, logger)
				mountMessages(r, svc, logger)

				r.Get("/notifications", listNotificationsHandler(svc.Notifications, logger))
				r.Post("/notifications/{notificationId}/read", markNotificationReadHandler(svc.Notifications, logger))
				r.Get("/dashboard", tenantDashboardHandler(svc.Dashboard, logger))
				r.Get("/knowledge/{slug}", publicArticleHandler(svc.Admin, logger))
			})

			r.Get("/metrics/pairing", pairingMetricsHandler(metrics))

			// =============================================
			// 3. Admin Master
			// =============================================
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdminMaster(logger))
				mountAdmin(r, svc.Admin, svc.Dashboard, logger)
			})
		})
	})

	return r
}

func mountConnections(r chi.Router, svc Services, logger *zap.Logger) {
	r.Route("/connections", func(r chi.Router) {
		r.Get("/", listConnectionsHandler(svc.Connections, logger))
		r.With(RequireCompanyAdmin).Post("/", createConnectionHandler(svc.Connections, logger))

		r.Route("/{connectionId}", func(r chi.Router) {
			r.Get("/", getConnectionHandler(svc.Connections, logger))
			r.Patch("/", updateConnectionHandler(svc.Connections, logger))
			r.With(RequireCompanyAdmin).Delete("/", deleteConnectionHandler(svc.Connections, svc.Pairing, logger))

			r.Post("/disconnect", disconnectHandler(svc.Connections, svc.Pairing, logger))
			r.Post("/reconnect", reconnectHandler(svc.Pairing, logger))
			r.Post("/sync", syncConnectionHandler(svc.Connections, logger))

			r.Post("/pairing", startPairingHandler(svc.Pairing, logger))
			r.Get("/pairing", pairingStatusHandler(svc.Pairing, logger))
			r.Delete("/pairing", cancelPairingHandler(svc.Pairing, logger))
			r.Get("/pairing/qr.png", pairingQRCodeHandler(svc.Pairing, logger))
		})
	})
}

func mountGroups(r chi.Router, svc Services, logger *zap.Logger) {
	r.Route("/groups", func(r chi.Router) {
		r.Get("/", listGroupsHandler(svc.Groups, logger))
		r.Post("/", createGroupHandler(svc.Groups, logger))
		r.Post("/import", importGroupsHandler(svc.Groups, logger))

		r.Route("/{groupId}", func(r chi.Router) {
			r.Get("/", getGroupHandler(svc.Groups, logger))
			r.Patch("/", updateGroupHandler(svc.Groups, logger))
			r.With(RequireCompanyAdmin).Delete("/", deleteGroupHandler(svc.Groups, logger))

			r.Get("/members", listMembersHandler(svc.Groups, logger))
			r.Post("/members", membersHandler(svc.Groups.AddMembers, "add", logger))
			r.Delete("/members", membersHandler(svc.Groups.RemoveMembers, "remove", logger))
			r.Post("/members/promote", membersHandler(svc.Groups.PromoteMembers, "promote", logger))
			r.Post("/members/demote", membersHandler(svc.Groups.DemoteMembers, "demote", logger))

			r.Get("/moderation", getModerationHandler(svc.Groups, logger))
			r.Put("/moderation", updateModerationHandler(svc.Groups, logger))
		})
	})
}

func mountMessages(r chi.Router, svc Services, logger *zap.Logger) {
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", listMessagesHandler(svc.Messages, logger))
		r.Post("/", createMessageHandler(svc.Messages, logger))
		r.Post("/broadcast", broadcastHandler(svc.Messages, logger))
		r.Get("/{messageId}", getMessageHandler(svc.Messages, logger))
		r.Post("/{messageId}/cancel", cancelMessageHandler(svc.Messages, logger))
	})
}

func mountAdmin(r chi.Router, admin *service.AdminService, dashboard *service.DashboardService, logger *zap.Logger) {
	r.Get("/dashboard", adminDashboardHandler(dashboard, logger))

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", listPlansHandler(admin, logger))
		r.Post("/", createPlanHandler(admin, logger))
		r.Get("/{planId}", getPlanHandler(admin, logger))
		r.Put("/{planId}", updatePlanHandler(admin, logger))
		r.Delete("/{planId}", deletePlanHandler(admin, logger))
	})

	r.Route("/companies", func(r chi.Router) {
		r.Get("/", listCompaniesHandler(admin, logger))
		r.Post("/", createCompanyHandler(admin, logger))
		r.Get("/{companyId}", getCompanyHandler(admin, logger))
		r.Put("/{companyId}", updateCompanyHandler(admin, logger))
		r.Delete("/{companyId}", deleteCompanyHandler(admin, logger))
		r.Post("/{companyId}/suspend", companyStatusHandler(admin.SuspendCompany, "suspend", logger))
		r.Post("/{companyId}/activate", companyStatusHandler(admin.ActivateCompany, "activate", logger))
		r.Post("/{companyId}/users", createCompanyUserHandler(admin, logger))
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/", listArticlesHandler(admin, logger))
		r.Post("/", createArticleHandler(admin, logger))
		r.Get("/slug/{slug}", getArticleBySlugHandler(admin, logger))
		r.Get("/{articleId}", getArticleHandler(admin, logger))
		r.Put("/{articleId}", updateArticleHandler(admin, logger))
		r.Post("/{articleId}/publish", publishArticleHandler(admin, logger))
		r.Delete("/{articleId}", deleteArticleHandler(admin, logger))
	})
}

// ============================================================
// Probes
// ============================================================

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func unavailableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "serviço não configurado")
	}
}

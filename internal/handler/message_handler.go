package handler

import (
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 7. Mensagens (agendadas e em massa)
// ============================================================

var messageStatuses = map[domain.MessageStatus]bool{
	domain.MessageDraft:     true,
	domain.MessageScheduled: true,
	domain.MessageQueued:    true,
	domain.MessageSent:      true,
	domain.MessageFailed:    true,
	domain.MessageCancelled: true,
}

func listMessagesHandler(svc *service.MessageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/messages")
		defer span.End()

		status := domain.MessageStatus(r.URL.Query().Get("status"))
		if status != "" && !messageStatuses[status] {
			writeError(w, http.StatusBadRequest, "status inválido")
			return
		}
		page, pageSize := parsePagination(r)

		msgs, err := svc.List(ctx, companyID(r), status, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(msgs, page, pageSize))
	}
}

func getMessageHandler(svc *service.MessageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/messages/{messageId}")
		defer span.End()

		msg, err := svc.Get(ctx, companyID(r), chi.URLParam(r, "messageId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, msg)
	}
}

func createMessageHandler(svc *service.MessageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/messages")
		defer span.End()

		var req domain.CreateMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}

		msg, err := svc.Create(ctx, companyID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, msg)
	}
}

func broadcastHandler(svc *service.MessageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/messages/broadcast")
		defer span.End()

		var req domain.BroadcastRequest
		if !decodeBody(w, r, &req) {
			return
		}

		resp, err := svc.Broadcast(ctx, companyID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func cancelMessageHandler(svc *service.MessageService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/messages/{messageId}/cancel")
		defer span.End()

		msg, err := svc.Cancel(ctx, companyID(r), chi.URLParam(r, "messageId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, msg)
	}
}

// ============================================================
// 8. Notificações & Dashboard
// ============================================================

func listNotificationsHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications")
		defer span.End()

		page, pageSize := parsePagination(r)
		items, err := svc.List(ctx, companyID(r), queryBool(r, "unread"), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(items, page, pageSize))
	}
}

func markNotificationReadHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/{notificationId}/read")
		defer span.End()

		if err := svc.MarkRead(ctx, companyID(r), chi.URLParam(r, "notificationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func tenantDashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		dash, err := svc.Tenant(ctx, companyID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, dash)
	}
}

// publicArticleHandler serves published public articles to tenants.
func publicArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/knowledge/{slug}")
		defer span.End()

		slug := chi.URLParam(r, "slug")
		article, err := admin.GetArticleBySlug(ctx, slug)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if article.Visibility != domain.ArticlePublic || article.Status != domain.ArticlePublished {
			handleServiceError(w, &domain.ErrNotFound{Resource: "article", ID: slug}, logger)
			return
		}

		writeJSON(w, http.StatusOK, article)
	}
}

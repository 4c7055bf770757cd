package service

import (
	"context"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var notificationTracer = otel.Tracer("service/notification")

// notifyTimeout bounds the persistence of one notification.
const notifyTimeout = 5 * time.Second

// NotificationService persists the dashboard toasts (success / error
// feedback of background operations such as pairing).
type NotificationService struct {
	store  port.NotificationStore
	logger *zap.Logger
}

// NewNotificationService creates a new notification service.
func NewNotificationService(store port.NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, logger: logger}
}

// Notify records a notification. It never fails the caller and outlives a
// cancelled ctx, so a closed modal still gets its toast.
func (s *NotificationService) Notify(ctx context.Context, companyID string, level domain.NotificationLevel, title, message string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	ctx, span := notificationTracer.Start(ctx, "NotificationService.Notify")
	defer span.End()

	fields := []zap.Field{
		zap.String("company_id", companyID),
		zap.String("level", string(level)),
		zap.String("title", title),
		zap.String("message", message),
	}
	if level == domain.NotifyError {
		s.logger.Warn("notification", fields...)
	} else {
		s.logger.Info("notification", fields...)
	}

	if companyID == "" {
		return
	}
	err := s.store.CreateNotification(ctx, &domain.Notification{
		CompanyID: companyID,
		Level:     level,
		Title:     title,
		Message:   message,
	})
	if err != nil {
		s.logger.Error("failed to persist notification", append(fields, zap.Error(err))...)
	}
}

// List returns the notifications of a company, newest first.
func (s *NotificationService) List(ctx context.Context, companyID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, error) {
	ctx, span := notificationTracer.Start(ctx, "NotificationService.List")
	defer span.End()

	return s.store.ListNotifications(ctx, companyID, unreadOnly, page, pageSize)
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, companyID, notificationID string) error {
	ctx, span := notificationTracer.Start(ctx, "NotificationService.MarkRead")
	defer span.End()

	return s.store.MarkNotificationRead(ctx, companyID, notificationID)
}

// UnreadCount returns how many notifications are still unread.
func (s *NotificationService) UnreadCount(ctx context.Context, companyID string) (int, error) {
	return s.store.CountNotifications(ctx, companyID, true)
}

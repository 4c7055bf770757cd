package port

import (
	"context"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// MessageStore handles message rows.
type MessageStore interface {
	ListMessages(ctx context.Context, companyID string, status domain.MessageStatus, page, pageSize int) ([]domain.Message, error)
	GetMessage(ctx context.Context, companyID, messageID string) (*domain.Message, error)
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	UpdateMessage(ctx context.Context, messageID string, patch map[string]any) error
	// TransitionMessage patches only while the status is still from and
	// reports whether the row changed.
	TransitionMessage(ctx context.Context, messageID string, from domain.MessageStatus, patch map[string]any) (bool, error)
	ListDueMessages(ctx context.Context, before time.Time, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, companyID string, status domain.MessageStatus, since *time.Time) (int, error)
}

// NotificationStore handles notification rows.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, companyID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, companyID, notificationID string) error
	CountNotifications(ctx context.Context, companyID string, unreadOnly bool) (int, error)
}

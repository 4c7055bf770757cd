package supabase

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
)

// ============================================================
// Notifications store
// ============================================================

func (c *Client) CreateNotification(ctx context.Context, n *domain.Notification) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateNotification")
	defer span.End()

	_, err := c.doPost(ctx, "notifications", map[string]any{
		"id":         uuid.NewString(),
		"company_id": n.CompanyID,
		"level":      n.Level,
		"title":      n.Title,
		"message":    n.Message,
		"read":       false,
	})
	return err
}

func (c *Client) ListNotifications(ctx context.Context, companyID string, unreadOnly bool, p, pageSize int) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNotifications")
	defer span.End()

	path := "notifications?company_id=" + eq(companyID) + "&order=created_at.desc" + page(p, pageSize)
	if unreadOnly {
		path += "&read=eq.false"
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Notification](body, "notifications")
}

func (c *Client) MarkNotificationRead(ctx context.Context, companyID, notificationID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkNotificationRead")
	defer span.End()

	return c.doPatch(ctx, "notifications?id="+eq(notificationID)+"&company_id="+eq(companyID), map[string]any{
		"read": true,
	})
}

func (c *Client) CountNotifications(ctx context.Context, companyID string, unreadOnly bool) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountNotifications")
	defer span.End()

	path := "notifications?select=id&company_id=" + eq(companyID)
	if unreadOnly {
		path += "&read=eq.false"
	}
	return c.doCount(ctx, path)
}

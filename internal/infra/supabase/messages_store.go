package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Messages store: immediate, scheduled and broadcast messages
// ============================================================

func (c *Client) ListMessages(ctx context.Context, companyID string, status domain.MessageStatus, p, pageSize int) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()

	path := "messages?company_id=" + eq(companyID) + "&order=created_at.desc" + page(p, pageSize)
	if status != "" {
		path += "&status=" + eq(string(status))
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Message](body, "messages")
}

func (c *Client) GetMessage(ctx context.Context, companyID, messageID string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	path := fmt.Sprintf("messages?id=%s&limit=1", eq(messageID))
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	m, err := decodeFirst[domain.Message](body, "message")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &domain.ErrNotFound{Resource: "message", ID: messageID}
	}
	return m, nil
}

func (c *Client) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMessage")
	defer span.End()

	row := map[string]any{
		"id":            uuid.NewString(),
		"company_id":    m.CompanyID,
		"connection_id": m.ConnectionID,
		"group_id":      m.GroupID,
		"content":       m.Content,
		"status":        m.Status,
	}
	if m.ScheduledAt != nil {
		row["scheduled_at"] = m.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if m.BroadcastID != "" {
		row["broadcast_id"] = m.BroadcastID
	}

	return insertOne[domain.Message](ctx, c, "messages", row)
}

func (c *Client) UpdateMessage(ctx context.Context, messageID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	return c.doPatch(ctx, "messages?id="+eq(messageID), patch)
}

// TransitionMessage applies patch only while the message is still in
// status from. It reports whether this call changed the row.
func (c *Client) TransitionMessage(ctx context.Context, messageID string, from domain.MessageStatus, patch map[string]any) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.TransitionMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID), attribute.String("message.from", string(from)))

	body, err := c.doPatchReturning(ctx, "messages?id="+eq(messageID)+"&status="+eq(string(from)), patch)
	if err != nil {
		return false, err
	}
	rows, err := decodeRows[domain.Message](body, "messages")
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ListDueMessages returns scheduled messages whose time has come, oldest first.
func (c *Client) ListDueMessages(ctx context.Context, before time.Time, limit int) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListDueMessages")
	defer span.End()

	path := fmt.Sprintf("messages?status=eq.scheduled&scheduled_at=lte.%s&order=scheduled_at.asc&limit=%d",
		urlTime(before), limit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Message](body, "messages")
}

// CountMessages counts messages of a company. since filters on sent_at for
// sent messages and on created_at otherwise.
func (c *Client) CountMessages(ctx context.Context, companyID string, status domain.MessageStatus, since *time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountMessages")
	defer span.End()

	path := "messages?select=id"
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	if status != "" {
		path += "&status=" + eq(string(status))
	}
	if since != nil {
		col := "created_at"
		if status == domain.MessageSent {
			col = "sent_at"
		}
		path += "&" + col + "=gte." + urlTime(*since)
	}
	return c.doCount(ctx, path)
}

func urlTime(t time.Time) string {
	// "+" of an offset would decode as a space; UTC sidesteps it
	return t.UTC().Format(time.RFC3339)
}

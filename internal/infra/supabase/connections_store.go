package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Connections store: WhatsApp numbers linked through the gateway
// ============================================================

func (c *Client) ListConnections(ctx context.Context, companyID string) ([]domain.Connection, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListConnections")
	defer span.End()

	path := "connections?order=created_at.desc"
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Connection](body, "connections")
}

func (c *Client) GetConnection(ctx context.Context, companyID, connectionID string) (*domain.Connection, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConnection")
	defer span.End()
	span.SetAttributes(attribute.String("connection.id", connectionID))

	path := fmt.Sprintf("connections?id=%s&limit=1", eq(connectionID))
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	conn, err := decodeFirst[domain.Connection](body, "connection")
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, &domain.ErrNotFound{Resource: "connection", ID: connectionID}
	}
	return conn, nil
}

func (c *Client) CreateConnection(ctx context.Context, conn *domain.Connection) (*domain.Connection, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateConnection")
	defer span.End()

	row := map[string]any{
		"id":            uuid.NewString(),
		"company_id":    conn.CompanyID,
		"name":          conn.Name,
		"instance_name": conn.InstanceName,
		"status":        conn.Status,
		"battery":       conn.Battery,
	}
	if conn.Number != "" {
		row["number"] = conn.Number
	}
	if conn.APIURL != "" {
		row["api_url"] = conn.APIURL
	}
	if conn.APIKey != "" {
		row["api_key"] = conn.APIKey
	}

	return insertOne[domain.Connection](ctx, c, "connections", row)
}

func (c *Client) UpdateConnection(ctx context.Context, connectionID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateConnection")
	defer span.End()
	span.SetAttributes(attribute.String("connection.id", connectionID))

	return c.doPatch(ctx, "connections?id="+eq(connectionID), withUpdatedAt(patch))
}

func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteConnection")
	defer span.End()

	return c.doDelete(ctx, "connections?id="+eq(connectionID))
}

func (c *Client) CountConnections(ctx context.Context, companyID string, status domain.ConnectionStatus) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountConnections")
	defer span.End()

	path := "connections?select=id"
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	if status != "" {
		path += "&status=" + eq(string(status))
	}
	return c.doCount(ctx, path)
}

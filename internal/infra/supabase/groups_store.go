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
// Groups store: groups + AI moderation settings
// ============================================================

func (c *Client) ListGroups(ctx context.Context, companyID, connectionID string) ([]domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListGroups")
	defer span.End()

	path := "groups?company_id=" + eq(companyID) + "&order=name.asc"
	if connectionID != "" {
		path += "&connection_id=" + eq(connectionID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Group](body, "groups")
}

func (c *Client) GetGroup(ctx context.Context, companyID, groupID string) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGroup")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	path := fmt.Sprintf("groups?id=%s&limit=1", eq(groupID))
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	g, err := decodeFirst[domain.Group](body, "group")
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &domain.ErrNotFound{Resource: "group", ID: groupID}
	}
	return g, nil
}

func (c *Client) GetGroupByJID(ctx context.Context, connectionID, groupJID string) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGroupByJID")
	defer span.End()

	path := fmt.Sprintf("groups?connection_id=%s&group_jid=%s&limit=1", eq(connectionID), eq(groupJID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.Group](body, "group")
}

func (c *Client) CreateGroup(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateGroup")
	defer span.End()

	status := g.Status
	if status == "" {
		status = domain.GroupActive
	}
	row := map[string]any{
		"id":             uuid.NewString(),
		"company_id":     g.CompanyID,
		"connection_id":  g.ConnectionID,
		"group_jid":      g.GroupJID,
		"name":           g.Name,
		"description":    g.Description,
		"members_count":  g.MembersCount,
		"messages_count": g.MessagesCount,
		"status":         status,
	}
	if g.LastActivity != nil {
		row["last_activity"] = g.LastActivity.UTC().Format(time.RFC3339)
	}

	return insertOne[domain.Group](ctx, c, "groups", row)
}

func (c *Client) UpdateGroup(ctx context.Context, groupID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateGroup")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	return c.doPatch(ctx, "groups?id="+eq(groupID), patch)
}

func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteGroup")
	defer span.End()

	return c.doDelete(ctx, "groups?id="+eq(groupID))
}

func (c *Client) CountGroups(ctx context.Context, companyID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountGroups")
	defer span.End()

	path := "groups?select=id&status=eq.active"
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	return c.doCount(ctx, path)
}

// --- Moderation settings ---

func (c *Client) GetModerationSettings(ctx context.Context, groupID string) (*domain.ModerationSettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetModerationSettings")
	defer span.End()

	body, err := c.get(ctx, "moderation_settings?group_id="+eq(groupID)+"&limit=1")
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.ModerationSettings](body, "moderation_settings")
}

func (c *Client) UpsertModerationSettings(ctx context.Context, s *domain.ModerationSettings) (*domain.ModerationSettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertModerationSettings")
	defer span.End()

	words := s.BannedWords
	if words == nil {
		words = []string{}
	}
	row := map[string]any{
		"group_id":        s.GroupID,
		"company_id":      s.CompanyID,
		"enabled":         s.Enabled,
		"banned_words":    words,
		"block_links":     s.BlockLinks,
		"auto_remove":     s.AutoRemove,
		"max_warnings":    s.MaxWarnings,
		"warning_message": s.WarningMessage,
		"updated_at":      time.Now().UTC().Format(time.RFC3339),
	}

	body, err := c.doUpsert(ctx, "moderation_settings", "group_id", row)
	if err != nil {
		return nil, err
	}
	saved, err := decodeFirst[domain.ModerationSettings](body, "moderation_settings")
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("no result from moderation_settings upsert")
	}
	return saved, nil
}

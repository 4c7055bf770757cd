package evolution

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// FetchGroups lists every group the instance takes part in, without participants.
func (c *Client) FetchGroups(ctx context.Context, instanceName string) ([]domain.GatewayGroup, error) {
	ctx, span := tracer.Start(ctx, "Evolution.FetchGroups")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	var groups []domain.GatewayGroup
	path := "/group/fetchAllGroups/" + url.PathEscape(instanceName) + "?getParticipants=false"
	if err := c.do(ctx, "fetch_groups", http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("groups.count", len(groups)))
	return groups, nil
}

// CreateGroup creates a WhatsApp group owned by the instance number.
func (c *Client) CreateGroup(ctx context.Context, instanceName, subject, description string, participants []string) (*domain.GatewayGroup, error) {
	ctx, span := tracer.Start(ctx, "Evolution.CreateGroup")
	defer span.End()
	span.SetAttributes(
		attribute.String("instance.name", instanceName),
		attribute.Int("participants.count", len(participants)),
	)

	body := map[string]any{
		"subject":      subject,
		"description":  description,
		"participants": participants,
	}

	var group domain.GatewayGroup
	if err := c.do(ctx, "create_group", http.MethodPost, "/group/create/"+url.PathEscape(instanceName), body, &group); err != nil {
		return nil, err
	}
	if group.Subject == "" {
		group.Subject = subject
	}
	return &group, nil
}

// FetchParticipants lists the members of one group.
func (c *Client) FetchParticipants(ctx context.Context, instanceName, groupJID string) ([]domain.GatewayParticipant, error) {
	ctx, span := tracer.Start(ctx, "Evolution.FetchParticipants")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName), attribute.String("group.jid", groupJID))

	var resp struct {
		Participants []domain.GatewayParticipant `json:"participants"`
	}
	path := "/group/participants/" + url.PathEscape(instanceName) + "?groupJid=" + url.QueryEscape(groupJID)
	if err := c.do(ctx, "fetch_participants", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// UpdateParticipants adds, removes, promotes or demotes members.
func (c *Client) UpdateParticipants(ctx context.Context, instanceName, groupJID string, action domain.ParticipantAction, participants []string) error {
	ctx, span := tracer.Start(ctx, "Evolution.UpdateParticipants")
	defer span.End()
	span.SetAttributes(
		attribute.String("instance.name", instanceName),
		attribute.String("group.jid", groupJID),
		attribute.String("action", string(action)),
	)

	body := map[string]any{
		"action":       action,
		"participants": participants,
	}
	path := "/group/updateParticipant/" + url.PathEscape(instanceName) + "?groupJid=" + url.QueryEscape(groupJID)
	return c.do(ctx, "update_participants", http.MethodPost, path, body, nil)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var groupTracer = otel.Tracer("service/group")

// importConcurrency bounds the store calls of one group import.
const importConcurrency = 4

// GroupService manages groups, their members and moderation settings.
type GroupService struct {
	groups      port.GroupStore
	moderation  port.ModerationStore
	companies   port.CompanyStore
	connections *ConnectionService
	notifier    port.Notifier
	logger      *zap.Logger
}

// NewGroupService creates a new group service.
func NewGroupService(groups port.GroupStore, moderation port.ModerationStore, companies port.CompanyStore, connections *ConnectionService, notifier port.Notifier, logger *zap.Logger) *GroupService {
	return &GroupService{
		groups:      groups,
		moderation:  moderation,
		companies:   companies,
		connections: connections,
		notifier:    notifier,
		logger:      logger,
	}
}

// ============================================================
// Groups
// ============================================================

// List returns the groups of a company, optionally of one connection.
func (s *GroupService) List(ctx context.Context, companyID, connectionID string) ([]domain.Group, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.List")
	defer span.End()

	return s.groups.ListGroups(ctx, companyID, connectionID)
}

// Get returns one group of a company.
func (s *GroupService) Get(ctx context.Context, companyID, groupID string) (*domain.Group, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.Get")
	defer span.End()

	return s.groups.GetGroup(ctx, companyID, groupID)
}

// Create creates the group on WhatsApp through an active connection and
// stores it with the JID the gateway assigned.
func (s *GroupService) Create(ctx context.Context, companyID string, req *domain.CreateGroupRequest) (*domain.Group, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.Create")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}

	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company.MaxGroups > 0 {
		current, err := s.groups.CountGroups(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("count groups: %w", err)
		}
		if current >= company.MaxGroups {
			return nil, &domain.ErrLimitExceeded{LimitType: "groups", Limit: company.MaxGroups, Current: current}
		}
	}

	conn, gw, err := s.activeGateway(ctx, companyID, req.ConnectionID)
	if err != nil {
		return nil, err
	}

	participants := normalizePhones(req.Participants)
	created, err := gw.CreateGroup(ctx, conn.InstanceName, strings.TrimSpace(req.Name), req.Description, participants)
	if err != nil {
		s.logger.Error("gateway group creation failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		return nil, err
	}

	name := created.Subject
	if name == "" {
		name = strings.TrimSpace(req.Name)
	}
	members := created.Size
	if members == 0 {
		members = len(participants) + 1 // the instance number owns the group
	}

	g, err := s.groups.CreateGroup(ctx, &domain.Group{
		CompanyID:    companyID,
		ConnectionID: conn.ID,
		GroupJID:     created.JID,
		Name:         name,
		Description:  req.Description,
		MembersCount: members,
		Status:       domain.GroupActive,
	})
	if err != nil {
		// the WhatsApp group exists; an import will pick it up
		s.logger.Error("group created on gateway but not stored",
			zap.String("group_jid", created.JID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// Update changes the stored name, description or status of a group.
func (s *GroupService) Update(ctx context.Context, companyID, groupID string, req *domain.UpdateGroupRequest) (*domain.Group, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.Update")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.groups.GetGroup(ctx, companyID, groupID); err != nil {
		return nil, err
	}

	patch := map[string]any{}
	if req.Name != nil {
		patch["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		patch["description"] = *req.Description
	}
	if req.Status != nil {
		patch["status"] = *req.Status
	}
	if len(patch) > 0 {
		if err := s.groups.UpdateGroup(ctx, groupID, patch); err != nil {
			return nil, fmt.Errorf("update group: %w", err)
		}
	}
	return s.groups.GetGroup(ctx, companyID, groupID)
}

// Delete removes the stored group. The WhatsApp group is left untouched.
func (s *GroupService) Delete(ctx context.Context, companyID, groupID string) error {
	ctx, span := groupTracer.Start(ctx, "GroupService.Delete")
	defer span.End()

	if _, err := s.groups.GetGroup(ctx, companyID, groupID); err != nil {
		return err
	}
	return s.groups.DeleteGroup(ctx, groupID)
}

// Import stores every group the connection takes part in, matching rows by JID.
func (s *GroupService) Import(ctx context.Context, companyID, connectionID string) (*domain.ImportGroupsResult, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.Import")
	defer span.End()

	conn, gw, err := s.activeGateway(ctx, companyID, connectionID)
	if err != nil {
		return nil, err
	}

	remote, err := gw.FetchGroups(ctx, conn.InstanceName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("groups.remote", len(remote)))

	var created, updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importConcurrency)

	for _, rg := range remote {
		g.Go(func() error {
			existing, err := s.groups.GetGroupByJID(gctx, conn.ID, rg.JID)
			if err != nil {
				return fmt.Errorf("lookup group %s: %w", rg.JID, err)
			}
			if existing != nil {
				if err := s.groups.UpdateGroup(gctx, existing.ID, map[string]any{
					"name":          rg.Subject,
					"description":   rg.Description,
					"members_count": rg.Size,
				}); err != nil {
					return fmt.Errorf("update group %s: %w", rg.JID, err)
				}
				updated.Add(1)
				return nil
			}

			if _, err := s.groups.CreateGroup(gctx, &domain.Group{
				CompanyID:    companyID,
				ConnectionID: conn.ID,
				GroupJID:     rg.JID,
				Name:         rg.Subject,
				Description:  rg.Description,
				MembersCount: rg.Size,
				Status:       domain.GroupActive,
			}); err != nil {
				return fmt.Errorf("create group %s: %w", rg.JID, err)
			}
			created.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &domain.ImportGroupsResult{
		Created: int(created.Load()),
		Updated: int(updated.Load()),
		Total:   len(remote),
	}
	s.logger.Info("groups imported",
		zap.String("connection_id", conn.ID),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
	)
	s.notifier.Notify(ctx, companyID, domain.NotifySuccess, "Grupos importados",
		fmt.Sprintf("%d novos, %d atualizados", res.Created, res.Updated))
	return res, nil
}

// ============================================================
// Members
// ============================================================

// ListMembers returns the current participants from the gateway.
func (s *GroupService) ListMembers(ctx context.Context, companyID, groupID string) ([]domain.Member, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.ListMembers")
	defer span.End()

	g, conn, gw, err := s.groupGateway(ctx, companyID, groupID)
	if err != nil {
		return nil, err
	}

	parts, err := gw.FetchParticipants(ctx, conn.InstanceName, g.GroupJID)
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(parts))
	for _, p := range parts {
		role := p.Admin
		if role == "" {
			role = "member"
		}
		members = append(members, domain.Member{
			JID:    p.ID,
			Number: jidNumber(p.ID),
			Role:   role,
		})
	}
	return members, nil
}

// AddMembers adds participants to a group.
func (s *GroupService) AddMembers(ctx context.Context, companyID, groupID string, req *domain.MembersRequest) error {
	return s.updateMembers(ctx, companyID, groupID, domain.ParticipantAdd, req)
}

// RemoveMembers removes participants from a group.
func (s *GroupService) RemoveMembers(ctx context.Context, companyID, groupID string, req *domain.MembersRequest) error {
	return s.updateMembers(ctx, companyID, groupID, domain.ParticipantRemove, req)
}

// PromoteMembers makes participants admins.
func (s *GroupService) PromoteMembers(ctx context.Context, companyID, groupID string, req *domain.MembersRequest) error {
	return s.updateMembers(ctx, companyID, groupID, domain.ParticipantPromote, req)
}

// DemoteMembers removes the admin role of participants.
func (s *GroupService) DemoteMembers(ctx context.Context, companyID, groupID string, req *domain.MembersRequest) error {
	return s.updateMembers(ctx, companyID, groupID, domain.ParticipantDemote, req)
}

func (s *GroupService) updateMembers(ctx context.Context, companyID, groupID string, action domain.ParticipantAction, req *domain.MembersRequest) error {
	ctx, span := groupTracer.Start(ctx, "GroupService.UpdateMembers")
	defer span.End()
	span.SetAttributes(attribute.String("action", string(action)))

	if err := Validate(req); err != nil {
		return err
	}

	g, conn, gw, err := s.groupGateway(ctx, companyID, groupID)
	if err != nil {
		return err
	}

	if err := gw.UpdateParticipants(ctx, conn.InstanceName, g.GroupJID, action, normalizePhones(req.Participants)); err != nil {
		return err
	}

	if action == domain.ParticipantAdd || action == domain.ParticipantRemove {
		s.refreshMembersCount(ctx, g, conn, gw)
	}
	return nil
}

// refreshMembersCount is best effort: the membership change already happened.
func (s *GroupService) refreshMembersCount(ctx context.Context, g *domain.Group, conn *domain.Connection, gw port.Gateway) {
	parts, err := gw.FetchParticipants(ctx, conn.InstanceName, g.GroupJID)
	if err == nil {
		err = s.groups.UpdateGroup(ctx, g.ID, map[string]any{
			"members_count": len(parts),
			"last_activity": time.Now().UTC().Format(time.RFC3339),
		})
	}
	if err != nil {
		s.logger.Warn("failed to refresh members count",
			zap.String("group_id", g.ID),
			zap.Error(err),
		)
	}
}

// ============================================================
// Moderation settings
// ============================================================

// GetModeration returns the saved settings or the defaults.
func (s *GroupService) GetModeration(ctx context.Context, companyID, groupID string) (*domain.ModerationSettings, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.GetModeration")
	defer span.End()

	if _, err := s.groups.GetGroup(ctx, companyID, groupID); err != nil {
		return nil, err
	}

	settings, err := s.moderation.GetModerationSettings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return domain.DefaultModerationSettings(groupID, companyID), nil
	}
	return settings, nil
}

// UpdateModeration replaces the moderation settings of a group.
func (s *GroupService) UpdateModeration(ctx context.Context, companyID, groupID string, req *domain.UpdateModerationRequest) (*domain.ModerationSettings, error) {
	ctx, span := groupTracer.Start(ctx, "GroupService.UpdateModeration")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.groups.GetGroup(ctx, companyID, groupID); err != nil {
		return nil, err
	}

	return s.moderation.UpsertModerationSettings(ctx, &domain.ModerationSettings{
		GroupID:        groupID,
		CompanyID:      companyID,
		Enabled:        req.Enabled,
		BannedWords:    normalizeWords(req.BannedWords),
		BlockLinks:     req.BlockLinks,
		AutoRemove:     req.AutoRemove,
		MaxWarnings:    req.MaxWarnings,
		WarningMessage: strings.TrimSpace(req.WarningMessage),
	})
}

// ============================================================
// helpers
// ============================================================

// activeGateway loads a connection of the company and requires it paired.
func (s *GroupService) activeGateway(ctx context.Context, companyID, connectionID string) (*domain.Connection, port.Gateway, error) {
	conn, err := s.connections.Get(ctx, companyID, connectionID)
	if err != nil {
		return nil, nil, err
	}
	if conn.Status != domain.ConnectionActive {
		return nil, nil, &domain.ErrValidation{Field: "connection_id", Message: "Conexão não está ativa"}
	}
	gw, err := s.connections.GatewayFor(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	return conn, gw, nil
}

func (s *GroupService) groupGateway(ctx context.Context, companyID, groupID string) (*domain.Group, *domain.Connection, port.Gateway, error) {
	g, err := s.groups.GetGroup(ctx, companyID, groupID)
	if err != nil {
		return nil, nil, nil, err
	}
	conn, gw, err := s.activeGateway(ctx, companyID, g.ConnectionID)
	if err != nil {
		return nil, nil, nil, err
	}
	return g, conn, gw, nil
}

func normalizePhones(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if n := NormalizePhone(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalizeWords lowercases, trims and dedupes banned words keeping order.
func normalizeWords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, w := range in {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func jidNumber(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

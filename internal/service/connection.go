package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var connectionTracer = otel.Tracer("service/connection")

// ConnectionService manages WhatsApp connections and their gateway instances.
type ConnectionService struct {
	store     port.ConnectionStore
	companies port.CompanyStore
	gateways  port.GatewayResolver
	infoCache port.Cache[*domain.InstanceInfo]
	notifier  port.Notifier
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewConnectionService creates a new connection service.
func NewConnectionService(
	store port.ConnectionStore,
	companies port.CompanyStore,
	gateways port.GatewayResolver,
	infoCache port.Cache[*domain.InstanceInfo],
	notifier port.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConnectionService {
	return &ConnectionService{
		store:     store,
		companies: companies,
		gateways:  gateways,
		infoCache: infoCache,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// CRUD
// ============================================================

// List returns the connections of a company.
func (s *ConnectionService) List(ctx context.Context, companyID string) ([]domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.List")
	defer span.End()

	return s.store.ListConnections(ctx, companyID)
}

// Get returns one connection. An empty companyID skips the tenant check.
func (s *ConnectionService) Get(ctx context.Context, companyID, connectionID string) (*domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Get")
	defer span.End()

	return s.store.GetConnection(ctx, companyID, connectionID)
}

// Create registers a connection waiting for its QR pairing. The gateway
// instance itself is created when pairing starts.
func (s *ConnectionService) Create(ctx context.Context, companyID string, req *domain.CreateConnectionRequest) (*domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	if err := Validate(req); err != nil {
		return nil, err
	}

	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company.MaxConnections > 0 {
		current, err := s.store.CountConnections(ctx, companyID, "")
		if err != nil {
			return nil, fmt.Errorf("count connections: %w", err)
		}
		if current >= company.MaxConnections {
			return nil, &domain.ErrLimitExceeded{LimitType: "connections", Limit: company.MaxConnections, Current: current}
		}
	}

	instanceName := req.InstanceName
	if instanceName == "" {
		instanceName = GenerateInstanceName(req.Name)
	}

	conn, err := s.store.CreateConnection(ctx, &domain.Connection{
		CompanyID:    companyID,
		Name:         strings.TrimSpace(req.Name),
		InstanceName: instanceName,
		Status:       domain.ConnectionAwaitingQR,
		APIURL:       req.APIURL,
		APIKey:       req.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	s.logger.Info("connection created",
		zap.String("company_id", companyID),
		zap.String("connection_id", conn.ID),
		zap.String("instance_name", conn.InstanceName),
	)
	return conn, nil
}

// Update renames a connection or changes its gateway override.
func (s *ConnectionService) Update(ctx context.Context, companyID, connectionID string, req *domain.UpdateConnectionRequest) (*domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Update")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetConnection(ctx, companyID, connectionID); err != nil {
		return nil, err
	}

	patch := map[string]any{}
	if req.Name != nil {
		patch["name"] = strings.TrimSpace(*req.Name)
	}
	if req.APIURL != nil {
		patch["api_url"] = *req.APIURL
	}
	if req.APIKey != nil {
		patch["api_key"] = *req.APIKey
	}
	if len(patch) > 0 {
		if err := s.store.UpdateConnection(ctx, connectionID, patch); err != nil {
			return nil, fmt.Errorf("update connection: %w", err)
		}
	}
	return s.store.GetConnection(ctx, companyID, connectionID)
}

// Delete tears the gateway instance down (best effort) and removes the row.
func (s *ConnectionService) Delete(ctx context.Context, companyID, connectionID string) error {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Delete")
	defer span.End()

	conn, err := s.store.GetConnection(ctx, companyID, connectionID)
	if err != nil {
		return err
	}

	gw, err := s.GatewayFor(ctx, conn)
	if err != nil {
		return err
	}
	if err := gw.DeleteInstance(ctx, conn.InstanceName); err != nil {
		s.logger.Warn("gateway instance teardown failed, deleting row anyway",
			zap.String("connection_id", conn.ID),
			zap.String("instance_name", conn.InstanceName),
			zap.Error(err),
		)
	}

	if err := s.store.DeleteConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	s.infoCache.Delete(conn.InstanceName)

	s.logger.Info("connection deleted", zap.String("connection_id", conn.ID))
	return nil
}

// ============================================================
// Gateway operations
// ============================================================

// Disconnect logs the WhatsApp session out and marks the row disconnected.
func (s *ConnectionService) Disconnect(ctx context.Context, companyID, connectionID string) (*domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Disconnect")
	defer span.End()

	conn, err := s.store.GetConnection(ctx, companyID, connectionID)
	if err != nil {
		return nil, err
	}

	gw, err := s.GatewayFor(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := gw.DisconnectInstance(ctx, conn.InstanceName); err != nil {
		s.logger.Error("gateway logout failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		s.notifier.Notify(ctx, conn.CompanyID, domain.NotifyError, "Falha ao desconectar", domain.GatewayErrorMessage)
		return nil, err
	}

	if err := s.store.UpdateConnection(ctx, connectionID, map[string]any{
		"status": domain.ConnectionDisconnected,
	}); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}
	s.infoCache.Delete(conn.InstanceName)
	s.notifier.Notify(ctx, conn.CompanyID, domain.NotifySuccess, "WhatsApp desconectado", conn.Name)

	conn.Status = domain.ConnectionDisconnected
	return conn, nil
}

// Sync refreshes status, number and last_sync from the gateway. Gateway
// answers are cached per instance for the cache TTL.
func (s *ConnectionService) Sync(ctx context.Context, companyID, connectionID string) (*domain.Connection, error) {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.Sync")
	defer span.End()

	conn, err := s.store.GetConnection(ctx, companyID, connectionID)
	if err != nil {
		return nil, err
	}

	info, ok := s.infoCache.Get(conn.InstanceName)
	if ok {
		s.metrics.IncrCacheHit("instance_info")
	} else {
		s.metrics.IncrCacheMiss("instance_info")

		gw, err := s.GatewayFor(ctx, conn)
		if err != nil {
			return nil, err
		}
		info, err = gw.GetInstanceInfo(ctx, conn.InstanceName)
		if err != nil {
			return nil, err
		}
		s.infoCache.Set(conn.InstanceName, info)
	}

	now := time.Now().UTC()
	status := StatusFromInstance(conn.Status, info.State)
	patch := map[string]any{
		"status":    status,
		"last_sync": now.Format(time.RFC3339),
	}
	if info.Number != "" {
		patch["number"] = info.Number
		conn.Number = info.Number
	}
	if err := s.store.UpdateConnection(ctx, connectionID, patch); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}

	conn.Status = status
	conn.LastSync = &now
	return conn, nil
}

// StatusFromInstance maps a gateway session state onto the persisted status.
// A connection that never paired stays awaiting_qr while the gateway says close.
func StatusFromInstance(current domain.ConnectionStatus, state domain.InstanceState) domain.ConnectionStatus {
	switch state {
	case domain.InstanceOpen:
		return domain.ConnectionActive
	case domain.InstanceClose:
		if current == domain.ConnectionAwaitingQR {
			return current
		}
		return domain.ConnectionDisconnected
	default:
		return current
	}
}

// MarkConnected is the single write that records a successful pairing.
func (s *ConnectionService) MarkConnected(ctx context.Context, connectionID, number string, at time.Time) error {
	ctx, span := connectionTracer.Start(ctx, "ConnectionService.MarkConnected")
	defer span.End()

	ts := at.UTC().Format(time.RFC3339)
	patch := map[string]any{
		"status":       domain.ConnectionActive,
		"connected_at": ts,
		"last_sync":    ts,
	}
	if number != "" {
		patch["number"] = number
	}
	return s.store.UpdateConnection(ctx, connectionID, patch)
}

// GatewayFor returns the gateway a connection talks to: its own override,
// else its company's, else the configured default.
func (s *ConnectionService) GatewayFor(ctx context.Context, conn *domain.Connection) (port.Gateway, error) {
	creds := domain.GatewayCredentials{BaseURL: conn.APIURL, APIKey: conn.APIKey}
	if creds.BaseURL != "" {
		return s.gateways(creds), nil
	}

	company, err := s.companies.GetCompany(ctx, conn.CompanyID)
	if err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("get company: %w", err)
		}
		return s.gateways(domain.GatewayCredentials{}), nil
	}
	if company.EvolutionAPIURL != "" {
		creds = domain.GatewayCredentials{BaseURL: company.EvolutionAPIURL, APIKey: company.EvolutionAPIKey}
	}
	return s.gateways(creds), nil
}

// GenerateInstanceName derives a gateway-safe unique name from a label.
func GenerateInstanceName(label string) string {
	base := Slugify(label)
	if len(base) > 40 {
		base = strings.TrimRight(base[:40], "-")
	}
	if base == "" {
		base = "wa"
	}
	return base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

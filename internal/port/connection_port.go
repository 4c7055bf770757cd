package port

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// ConnectionStore handles connection rows.
// An empty companyID on reads means "any company" (workers, admin).
type ConnectionStore interface {
	ListConnections(ctx context.Context, companyID string) ([]domain.Connection, error)
	GetConnection(ctx context.Context, companyID, connectionID string) (*domain.Connection, error)
	CreateConnection(ctx context.Context, conn *domain.Connection) (*domain.Connection, error)
	UpdateConnection(ctx context.Context, connectionID string, patch map[string]any) error
	DeleteConnection(ctx context.Context, connectionID string) error
	CountConnections(ctx context.Context, companyID string, status domain.ConnectionStatus) (int, error)
}

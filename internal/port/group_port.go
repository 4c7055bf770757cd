package port

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// GroupStore handles group rows. GetGroupByJID returns nil, nil when the
// connection has no row for that JID yet.
type GroupStore interface {
	ListGroups(ctx context.Context, companyID, connectionID string) ([]domain.Group, error)
	GetGroup(ctx context.Context, companyID, groupID string) (*domain.Group, error)
	GetGroupByJID(ctx context.Context, connectionID, groupJID string) (*domain.Group, error)
	CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error)
	UpdateGroup(ctx context.Context, groupID string, patch map[string]any) error
	DeleteGroup(ctx context.Context, groupID string) error
	CountGroups(ctx context.Context, companyID string) (int, error)
}

// ModerationStore handles AI moderation settings. Get returns nil, nil when
// the group has no saved settings.
type ModerationStore interface {
	GetModerationSettings(ctx context.Context, groupID string) (*domain.ModerationSettings, error)
	UpsertModerationSettings(ctx context.Context, settings *domain.ModerationSettings) (*domain.ModerationSettings, error)
}

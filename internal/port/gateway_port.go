package port

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// Gateway is the WhatsApp gateway (Evolution API) as seen by the services.
// Every method fails with *domain.ErrExternalService on a non-2xx answer or
// an unreadable body.
type Gateway interface {
	CreateInstance(ctx context.Context, instanceName string) error
	ConnectInstance(ctx context.Context, instanceName string) (*domain.ConnectResult, error)
	GetInstanceInfo(ctx context.Context, instanceName string) (*domain.InstanceInfo, error)
	DisconnectInstance(ctx context.Context, instanceName string) error
	DeleteInstance(ctx context.Context, instanceName string) error

	FetchGroups(ctx context.Context, instanceName string) ([]domain.GatewayGroup, error)
	CreateGroup(ctx context.Context, instanceName, subject, description string, participants []string) (*domain.GatewayGroup, error)
	FetchParticipants(ctx context.Context, instanceName, groupJID string) ([]domain.GatewayParticipant, error)
	UpdateParticipants(ctx context.Context, instanceName, groupJID string, action domain.ParticipantAction, participants []string) error

	SendText(ctx context.Context, instanceName, to, text string) (*domain.SendResult, error)
}

// GatewayResolver returns the gateway bound to the given credentials.
// Empty credentials select the default gateway from configuration.
type GatewayResolver func(creds domain.GatewayCredentials) Gateway

package domain

import "time"

// ============================================================
// Connections: one WhatsApp number linked through the gateway
// ============================================================

// ConnectionStatus is the persisted lifecycle status of a connection.
type ConnectionStatus string

const (
	ConnectionAwaitingQR   ConnectionStatus = "awaiting_qr"
	ConnectionActive       ConnectionStatus = "active"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Connection maps the connections table.
type Connection struct {
	ID           string           `json:"id"`
	CompanyID    string           `json:"company_id"`
	Name         string           `json:"name"`
	InstanceName string           `json:"instance_name"`
	Status       ConnectionStatus `json:"status"`
	Number       string           `json:"number"`
	Battery      int              `json:"battery"`
	LastSync     *time.Time       `json:"last_sync,omitempty"`
	ConnectedAt  *time.Time       `json:"connected_at,omitempty"`
	APIURL       string           `json:"api_url,omitempty"`
	APIKey       string           `json:"api_key,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}

// Redacted returns a copy safe to send to clients (no gateway key).
func (c Connection) Redacted() Connection {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// CreateConnectionRequest is the body for POST /v1/connections.
type CreateConnectionRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=80"`
	InstanceName string `json:"instance_name" validate:"omitempty,max=64,instancename"`
	APIURL       string `json:"api_url" validate:"omitempty,url"`
	APIKey       string `json:"api_key" validate:"omitempty,max=256"`
}

// UpdateConnectionRequest is the body for PATCH /v1/connections/{id}.
type UpdateConnectionRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=2,max=80"`
	APIURL *string `json:"api_url" validate:"omitempty,url"`
	APIKey *string `json:"api_key" validate:"omitempty,max=256"`
}

// GatewayCredentials selects which gateway a connection talks to.
type GatewayCredentials struct {
	BaseURL string
	APIKey  string
}

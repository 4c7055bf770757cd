package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Instance lifecycle: create, connect, status, logout, delete
// ============================================================

// CreateInstance registers a new instance that will pair through a QR code.
func (c *Client) CreateInstance(ctx context.Context, instanceName string) error {
	ctx, span := tracer.Start(ctx, "Evolution.CreateInstance")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	body := map[string]any{
		"instanceName": instanceName,
		"qrcode":       true,
		"integration":  c.integration,
	}
	return c.do(ctx, "create_instance", http.MethodPost, "/instance/create", body, nil)
}

type connectResponse struct {
	PairingCode string `json:"pairingCode"`
	Code        string `json:"code"`
	Base64      string `json:"base64"`
	Count       int    `json:"count"`
	Instance    *struct {
		State string `json:"state"`
	} `json:"instance"`
}

// ConnectInstance asks the gateway for pairing materials. An instance that
// is already paired answers with state "open" and no code.
func (c *Client) ConnectInstance(ctx context.Context, instanceName string) (*domain.ConnectResult, error) {
	ctx, span := tracer.Start(ctx, "Evolution.ConnectInstance")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	var resp connectResponse
	path := "/instance/connect/" + url.PathEscape(instanceName)
	if err := c.do(ctx, "connect_instance", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	result := &domain.ConnectResult{
		Code:        resp.Code,
		Base64:      resp.Base64,
		PairingCode: resp.PairingCode,
		Count:       resp.Count,
	}
	if resp.Instance != nil {
		result.State = domain.InstanceState(resp.Instance.State)
	}
	if result.State == "" && result.HasQRCode() {
		result.State = domain.InstanceConnecting
	}
	return result, nil
}

// fetchInstances answers in two shapes depending on the gateway version:
// v2 lists flat records, v1 nests them under "instance".
type instanceRecord struct {
	Name             string `json:"name"`
	ConnectionStatus string `json:"connectionStatus"`
	OwnerJID         string `json:"ownerJid"`
	ProfileName      string `json:"profileName"`
	ProfilePicURL    string `json:"profilePicUrl"`

	Instance *struct {
		InstanceName      string `json:"instanceName"`
		Status            string `json:"status"`
		Owner             string `json:"owner"`
		ProfileName       string `json:"profileName"`
		ProfilePictureURL string `json:"profilePictureUrl"`
	} `json:"instance"`
}

func (r instanceRecord) toInfo() *domain.InstanceInfo {
	if r.Instance != nil {
		return &domain.InstanceInfo{
			Name:          r.Instance.InstanceName,
			State:         domain.InstanceState(r.Instance.Status),
			Number:        JIDToNumber(r.Instance.Owner),
			ProfileName:   r.Instance.ProfileName,
			ProfilePicURL: r.Instance.ProfilePictureURL,
		}
	}
	return &domain.InstanceInfo{
		Name:          r.Name,
		State:         domain.InstanceState(r.ConnectionStatus),
		Number:        JIDToNumber(r.OwnerJID),
		ProfileName:   r.ProfileName,
		ProfilePicURL: r.ProfilePicURL,
	}
}

// GetInstanceInfo returns the session state and profile of an instance.
func (c *Client) GetInstanceInfo(ctx context.Context, instanceName string) (*domain.InstanceInfo, error) {
	ctx, span := tracer.Start(ctx, "Evolution.GetInstanceInfo")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	var raw json.RawMessage
	path := "/instance/fetchInstances?instanceName=" + url.QueryEscape(instanceName)
	if err := c.do(ctx, "fetch_instances", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var records []instanceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// some deployments answer a single object when filtering by name
		var single instanceRecord
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, &domain.ErrExternalService{Service: "evolution/fetch_instances", Status: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
		}
		records = []instanceRecord{single}
	}

	for _, r := range records {
		info := r.toInfo()
		if info.Name == instanceName {
			return info, nil
		}
	}
	if len(records) == 1 && records[0].toInfo().Name == "" {
		info := records[0].toInfo()
		info.Name = instanceName
		return info, nil
	}

	return nil, &domain.ErrExternalService{
		Service: "evolution/fetch_instances",
		Status:  http.StatusNotFound,
		Err:     fmt.Errorf("instance %s not found on gateway", instanceName),
	}
}

// DisconnectInstance logs the WhatsApp session out. The instance survives
// and can be paired again.
func (c *Client) DisconnectInstance(ctx context.Context, instanceName string) error {
	ctx, span := tracer.Start(ctx, "Evolution.DisconnectInstance")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	return c.do(ctx, "logout_instance", http.MethodDelete, "/instance/logout/"+url.PathEscape(instanceName), nil, nil)
}

// DeleteInstance removes the instance from the gateway.
func (c *Client) DeleteInstance(ctx context.Context, instanceName string) error {
	ctx, span := tracer.Start(ctx, "Evolution.DeleteInstance")
	defer span.End()
	span.SetAttributes(attribute.String("instance.name", instanceName))

	return c.do(ctx, "delete_instance", http.MethodDelete, "/instance/delete/"+url.PathEscape(instanceName), nil, nil)
}

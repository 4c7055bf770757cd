package domain

// ============================================================
// Gateway (Evolution API) view of a WhatsApp instance
// ============================================================

// InstanceState is the session state reported by the gateway.
type InstanceState string

const (
	InstanceOpen       InstanceState = "open"
	InstanceClose      InstanceState = "close"
	InstanceConnecting InstanceState = "connecting"
)

// ConnectResult is what the gateway returns when asked for pairing materials.
// Either a scannable code is present or the session is already open.
type ConnectResult struct {
	State       InstanceState `json:"state,omitempty"`
	Code        string        `json:"code,omitempty"`
	Base64      string        `json:"base64,omitempty"`
	PairingCode string        `json:"pairingCode,omitempty"`
	Count       int           `json:"count,omitempty"`
}

// HasQRCode reports whether the result carries something the user can scan.
func (r *ConnectResult) HasQRCode() bool {
	return r != nil && (r.Code != "" || r.Base64 != "")
}

// IsOpen reports whether the session is already paired.
func (r *ConnectResult) IsOpen() bool {
	return r != nil && r.State == InstanceOpen
}

// InstanceInfo is the current status and profile of an instance.
type InstanceInfo struct {
	Name          string        `json:"name"`
	State         InstanceState `json:"state"`
	Number        string        `json:"number,omitempty"`
	ProfileName   string        `json:"profile_name,omitempty"`
	ProfilePicURL string        `json:"profile_pic_url,omitempty"`
}

// GatewayGroup is a WhatsApp group as listed by the gateway.
type GatewayGroup struct {
	JID          string               `json:"id"`
	Subject      string               `json:"subject"`
	Description  string               `json:"desc,omitempty"`
	Size         int                  `json:"size"`
	Owner        string               `json:"owner,omitempty"`
	Participants []GatewayParticipant `json:"participants,omitempty"`
}

// GatewayParticipant is a member of a group as listed by the gateway.
type GatewayParticipant struct {
	ID    string `json:"id"`
	Admin string `json:"admin,omitempty"` // "", "admin" or "superadmin"
}

// ParticipantAction is the action for updateParticipant.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

// SendResult identifies a message accepted by the gateway.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

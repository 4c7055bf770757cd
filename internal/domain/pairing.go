package domain

import "time"

// PairingState is the state of one QR pairing attempt.
//
//	idle → generating → qr_displayed → polling → connected | error
type PairingState string

const (
	PairingIdle        PairingState = "idle"
	PairingGenerating  PairingState = "generating"
	PairingQRDisplayed PairingState = "qr_displayed"
	PairingPolling     PairingState = "polling"
	PairingConnected   PairingState = "connected"
	PairingError       PairingState = "error"
)

// PairingSession is a snapshot of a pairing attempt for one connection.
type PairingSession struct {
	ID           string       `json:"id"`
	ConnectionID string       `json:"connection_id"`
	CompanyID    string       `json:"company_id"`
	InstanceName string       `json:"instance_name"`
	State        PairingState `json:"state"`
	QRCode       string       `json:"qr_code,omitempty"` // data URI / base64 image from the gateway
	Code         string       `json:"code,omitempty"`    // raw QR payload
	PairingCode  string       `json:"pairing_code,omitempty"`
	Number       string       `json:"number,omitempty"`
	Error        string       `json:"error,omitempty"`
	PersistError string       `json:"persist_error,omitempty"`
	Polls        int          `json:"polls"`
	StartedAt    time.Time    `json:"started_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ConnectedAt  *time.Time   `json:"connected_at,omitempty"`
	Cancelled    bool         `json:"cancelled,omitempty"`
}

// Finished reports whether the session reached a terminal state or was closed.
func (s *PairingSession) Finished() bool {
	return s.Cancelled || s.State == PairingConnected || s.State == PairingError
}

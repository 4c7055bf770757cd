package domain

import "time"

// ============================================================
// Messages: immediate, scheduled and mass (broadcast) sends
// ============================================================

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageDraft     MessageStatus = "draft"
	MessageScheduled MessageStatus = "scheduled"
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// Message maps the messages table.
type Message struct {
	ID           string        `json:"id"`
	CompanyID    string        `json:"company_id"`
	ConnectionID string        `json:"connection_id"`
	GroupID      string        `json:"group_id"`
	Content      string        `json:"content"`
	Status       MessageStatus `json:"status"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	Error        string        `json:"error,omitempty"`
	BroadcastID  string        `json:"broadcast_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Cancellable reports whether the message can still be cancelled.
func (m *Message) Cancellable() bool {
	return m.Status == MessageScheduled || m.Status == MessageDraft
}

// CreateMessageRequest is the body for POST /v1/messages.
type CreateMessageRequest struct {
	GroupID     string     `json:"group_id" validate:"required"`
	Content     string     `json:"content" validate:"required,max=4096"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Draft       bool       `json:"draft"`
}

// BroadcastRequest is the body for POST /v1/messages/broadcast.
type BroadcastRequest struct {
	GroupIDs    []string   `json:"group_ids" validate:"required,min=1,max=200,unique,dive,required"`
	Content     string     `json:"content" validate:"required,max=4096"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// BroadcastResponse is returned by POST /v1/messages/broadcast.
type BroadcastResponse struct {
	BroadcastID string    `json:"broadcast_id"`
	Messages    []Message `json:"messages"`
}

// DispatchJob is the payload put on the dispatch queue.
type DispatchJob struct {
	JobID      string    `json:"job_id"`
	MessageID  string    `json:"message_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

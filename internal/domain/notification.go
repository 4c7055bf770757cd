package domain

import "time"

// NotificationLevel is the severity of a notification.
type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "info"
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
)

// Notification is the persisted form of the dashboard's transient toasts.
type Notification struct {
	ID        string            `json:"id"`
	CompanyID string            `json:"company_id"`
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

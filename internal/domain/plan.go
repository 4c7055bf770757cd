package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan maps the plans table (subscription plans of the Admin Master).
type Plan struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Interval         string          `json:"interval"` // monthly, yearly
	MaxGroups        int             `json:"max_groups"`
	MaxUsers         int             `json:"max_users"`
	MaxConnections   int             `json:"max_connections"`
	MessagesPerMonth int             `json:"messages_per_month"`
	Features         []string        `json:"features"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PlanRequest is the body for creating or replacing a plan.
type PlanRequest struct {
	Name             string          `json:"name" validate:"required,min=2,max=60"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency" validate:"omitempty,len=3,uppercase"`
	Interval         string          `json:"interval" validate:"omitempty,oneof=monthly yearly"`
	MaxGroups        int             `json:"max_groups" validate:"min=0"`
	MaxUsers         int             `json:"max_users" validate:"min=0"`
	MaxConnections   int             `json:"max_connections" validate:"min=0"`
	MessagesPerMonth int             `json:"messages_per_month" validate:"min=0"`
	Features         []string        `json:"features" validate:"max=50,dive,min=1,max=64"`
	IsActive         *bool           `json:"is_active"`
}

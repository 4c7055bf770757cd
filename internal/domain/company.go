package domain

import "time"

// CompanyStatus is the status of a tenant.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanySuspended CompanyStatus = "suspended"
	CompanyCancelled CompanyStatus = "cancelled"
)

// Company maps the companies table (a tenant of the SaaS).
type Company struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	CNPJ             string        `json:"cnpj"`
	Email            string        `json:"email"`
	Status           CompanyStatus `json:"status"`
	PlanID           string        `json:"plan_id,omitempty"`
	MaxGroups        int           `json:"max_groups"`
	MaxUsers         int           `json:"max_users"`
	MaxConnections   int           `json:"max_connections"`
	MessagesPerMonth int           `json:"messages_per_month"`
	EvolutionAPIURL  string        `json:"evolution_api_url,omitempty"`
	EvolutionAPIKey  string        `json:"evolution_api_key,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Redacted returns a copy without the gateway key.
func (c Company) Redacted() Company {
	if c.EvolutionAPIKey != "" {
		c.EvolutionAPIKey = "********"
	}
	return c
}

// CompanyRequest is the body for creating or updating a company.
type CompanyRequest struct {
	Name             string `json:"name" validate:"required,min=2,max=120"`
	CNPJ             string `json:"cnpj" validate:"required,cnpj"`
	Email            string `json:"email" validate:"required,email"`
	PlanID           string `json:"plan_id"`
	MaxGroups        *int   `json:"max_groups" validate:"omitempty,min=0"`
	MaxUsers         *int   `json:"max_users" validate:"omitempty,min=0"`
	MaxConnections   *int   `json:"max_connections" validate:"omitempty,min=0"`
	MessagesPerMonth *int   `json:"messages_per_month" validate:"omitempty,min=0"`
	EvolutionAPIURL  string `json:"evolution_api_url" validate:"omitempty,url"`
	EvolutionAPIKey  string `json:"evolution_api_key" validate:"omitempty,max=256"`
}

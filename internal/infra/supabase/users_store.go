package supabase

import (
	"context"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
)

// ============================================================
// App users: dashboard and back-office logins
// ============================================================

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.AppUser, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByEmail")
	defer span.End()

	body, err := c.get(ctx, "app_users?email="+eq(strings.ToLower(email))+"&limit=1")
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.AppUser](body, "app_users") // not found is not an error for auth lookup
}

func (c *Client) CreateUser(ctx context.Context, u *domain.AppUser) (*domain.AppUser, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	row := map[string]any{
		"id":            uuid.NewString(),
		"email":         strings.ToLower(u.Email),
		"name":          u.Name,
		"password_hash": u.PasswordHash,
		"role":          u.Role,
		"active":        true,
	}
	if u.CompanyID != "" {
		row["company_id"] = u.CompanyID
	}
	return insertOne[domain.AppUser](ctx, c, "app_users", row)
}

package supabase

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
)

// ============================================================
// Plans store (Admin Master)
// ============================================================

func (c *Client) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPlans")
	defer span.End()

	path := "plans?order=price.asc"
	if activeOnly {
		path += "&is_active=eq.true"
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Plan](body, "plans")
}

func (c *Client) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPlan")
	defer span.End()

	body, err := c.get(ctx, "plans?id="+eq(planID)+"&limit=1")
	if err != nil {
		return nil, err
	}
	p, err := decodeFirst[domain.Plan](body, "plan")
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &domain.ErrNotFound{Resource: "plan", ID: planID}
	}
	return p, nil
}

func (c *Client) CreatePlan(ctx context.Context, p *domain.Plan) (*domain.Plan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePlan")
	defer span.End()

	features := p.Features
	if features == nil {
		features = []string{}
	}
	return insertOne[domain.Plan](ctx, c, "plans", map[string]any{
		"id":                 uuid.NewString(),
		"name":               p.Name,
		"price":              p.Price,
		"currency":           p.Currency,
		"interval":           p.Interval,
		"max_groups":         p.MaxGroups,
		"max_users":          p.MaxUsers,
		"max_connections":    p.MaxConnections,
		"messages_per_month": p.MessagesPerMonth,
		"features":           features,
		"is_active":          p.IsActive,
	})
}

func (c *Client) UpdatePlan(ctx context.Context, planID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdatePlan")
	defer span.End()

	return c.doPatch(ctx, "plans?id="+eq(planID), patch)
}

func (c *Client) DeletePlan(ctx context.Context, planID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeletePlan")
	defer span.End()

	return c.doDelete(ctx, "plans?id="+eq(planID))
}

func (c *Client) CountPlans(ctx context.Context, activeOnly bool) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountPlans")
	defer span.End()

	path := "plans?select=id"
	if activeOnly {
		path += "&is_active=eq.true"
	}
	return c.doCount(ctx, path)
}

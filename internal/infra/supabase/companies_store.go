package supabase

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Companies store: tenants of the SaaS (Admin Master)
// ============================================================

func (c *Client) ListCompanies(ctx context.Context, status domain.CompanyStatus) ([]domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCompanies")
	defer span.End()

	path := "companies?order=name.asc"
	if status != "" {
		path += "&status=" + eq(string(status))
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Company](body, "companies")
}

func (c *Client) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCompany")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	body, err := c.get(ctx, "companies?id="+eq(companyID)+"&limit=1")
	if err != nil {
		return nil, err
	}
	co, err := decodeFirst[domain.Company](body, "company")
	if err != nil {
		return nil, err
	}
	if co == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
	}
	return co, nil
}

func (c *Client) GetCompanyByCNPJ(ctx context.Context, cnpj string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCompanyByCNPJ")
	defer span.End()

	body, err := c.get(ctx, "companies?cnpj="+eq(cnpj)+"&limit=1")
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.Company](body, "company")
}

func (c *Client) CreateCompany(ctx context.Context, co *domain.Company) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCompany")
	defer span.End()

	row := map[string]any{
		"id":                 uuid.NewString(),
		"name":               co.Name,
		"cnpj":               co.CNPJ,
		"email":              co.Email,
		"status":             co.Status,
		"max_groups":         co.MaxGroups,
		"max_users":          co.MaxUsers,
		"max_connections":    co.MaxConnections,
		"messages_per_month": co.MessagesPerMonth,
	}
	if co.PlanID != "" {
		row["plan_id"] = co.PlanID
	}
	if co.EvolutionAPIURL != "" {
		row["evolution_api_url"] = co.EvolutionAPIURL
	}
	if co.EvolutionAPIKey != "" {
		row["evolution_api_key"] = co.EvolutionAPIKey
	}

	return insertOne[domain.Company](ctx, c, "companies", row)
}

func (c *Client) UpdateCompany(ctx context.Context, companyID string, patch map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCompany")
	defer span.End()

	return c.doPatch(ctx, "companies?id="+eq(companyID), patch)
}

func (c *Client) DeleteCompany(ctx context.Context, companyID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCompany")
	defer span.End()

	return c.doDelete(ctx, "companies?id="+eq(companyID))
}

func (c *Client) CountCompanies(ctx context.Context, status domain.CompanyStatus) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountCompanies")
	defer span.End()

	path := "companies?select=id"
	if status != "" {
		path += "&status=" + eq(string(status))
	}
	return c.doCount(ctx, path)
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Companies: /v1/admin/companies
// ============================================================

func (s *AdminService) ListCompanies(ctx context.Context, status domain.CompanyStatus) ([]domain.Company, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ListCompanies")
	defer span.End()

	return s.companies.ListCompanies(ctx, status)
}

func (s *AdminService) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.GetCompany")
	defer span.End()

	return s.companies.GetCompany(ctx, companyID)
}

// CreateCompany registers a tenant. Limits not given in the request are
// copied from the plan.
func (s *AdminService) CreateCompany(ctx context.Context, req *domain.CompanyRequest) (*domain.Company, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.CreateCompany")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	cnpj := OnlyDigits(req.CNPJ)
	span.SetAttributes(attribute.String("company.cnpj", cnpj))

	existing, err := s.companies.GetCompanyByCNPJ(ctx, cnpj)
	if err != nil {
		return nil, fmt.Errorf("lookup cnpj: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "CNPJ já cadastrado"}
	}

	company := &domain.Company{
		Name:            strings.TrimSpace(req.Name),
		CNPJ:            cnpj,
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Status:          domain.CompanyActive,
		PlanID:          req.PlanID,
		EvolutionAPIURL: req.EvolutionAPIURL,
		EvolutionAPIKey: req.EvolutionAPIKey,
	}
	if req.PlanID != "" {
		plan, err := s.plans.GetPlan(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		company.MaxGroups = plan.MaxGroups
		company.MaxUsers = plan.MaxUsers
		company.MaxConnections = plan.MaxConnections
		company.MessagesPerMonth = plan.MessagesPerMonth
	}
	applyLimits(company, req)

	created, err := s.companies.CreateCompany(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	s.logger.Info("company created",
		zap.String("company_id", created.ID),
		zap.String("plan_id", created.PlanID),
	)
	return created, nil
}

// UpdateCompany changes the registration data, plan, limits or gateway
// override of a tenant. Changing the plan re-copies its limits unless the
// request sets them.
func (s *AdminService) UpdateCompany(ctx context.Context, companyID string, req *domain.CompanyRequest) (*domain.Company, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.UpdateCompany")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	current, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	cnpj := OnlyDigits(req.CNPJ)
	if cnpj != current.CNPJ {
		other, err := s.companies.GetCompanyByCNPJ(ctx, cnpj)
		if err != nil {
			return nil, fmt.Errorf("lookup cnpj: %w", err)
		}
		if other != nil && other.ID != companyID {
			return nil, &domain.ErrConflict{Message: "CNPJ já cadastrado"}
		}
	}

	next := *current
	next.Name = strings.TrimSpace(req.Name)
	next.CNPJ = cnpj
	next.Email = strings.ToLower(strings.TrimSpace(req.Email))
	next.EvolutionAPIURL = req.EvolutionAPIURL
	if req.EvolutionAPIKey != "" {
		next.EvolutionAPIKey = req.EvolutionAPIKey
	}
	if req.PlanID != "" && req.PlanID != current.PlanID {
		plan, err := s.plans.GetPlan(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		next.PlanID = plan.ID
		next.MaxGroups = plan.MaxGroups
		next.MaxUsers = plan.MaxUsers
		next.MaxConnections = plan.MaxConnections
		next.MessagesPerMonth = plan.MessagesPerMonth
	}
	applyLimits(&next, req)

	patch := map[string]any{
		"name":               next.Name,
		"cnpj":               next.CNPJ,
		"email":              next.Email,
		"max_groups":         next.MaxGroups,
		"max_users":          next.MaxUsers,
		"max_connections":    next.MaxConnections,
		"messages_per_month": next.MessagesPerMonth,
		"evolution_api_url":  next.EvolutionAPIURL,
		"evolution_api_key":  next.EvolutionAPIKey,
	}
	if next.PlanID != "" {
		patch["plan_id"] = next.PlanID
	}
	if err := s.companies.UpdateCompany(ctx, companyID, patch); err != nil {
		return nil, fmt.Errorf("update company: %w", err)
	}
	return &next, nil
}

// SuspendCompany blocks the logins of a tenant.
func (s *AdminService) SuspendCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	return s.setCompanyStatus(ctx, companyID, domain.CompanySuspended)
}

// ActivateCompany lifts a suspension.
func (s *AdminService) ActivateCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	return s.setCompanyStatus(ctx, companyID, domain.CompanyActive)
}

func (s *AdminService) setCompanyStatus(ctx context.Context, companyID string, status domain.CompanyStatus) (*domain.Company, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.SetCompanyStatus")
	defer span.End()
	span.SetAttributes(attribute.String("company.status", string(status)))

	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.Status == status {
		return company, nil
	}
	if err := s.companies.UpdateCompany(ctx, companyID, map[string]any{"status": status}); err != nil {
		return nil, fmt.Errorf("update company status: %w", err)
	}

	s.logger.Info("company status changed",
		zap.String("company_id", companyID),
		zap.String("from", string(company.Status)),
		zap.String("to", string(status)),
	)
	company.Status = status
	return company, nil
}

func (s *AdminService) DeleteCompany(ctx context.Context, companyID string) error {
	ctx, span := adminTracer.Start(ctx, "AdminService.DeleteCompany")
	defer span.End()

	if _, err := s.companies.GetCompany(ctx, companyID); err != nil {
		return err
	}
	return s.companies.DeleteCompany(ctx, companyID)
}

func applyLimits(c *domain.Company, req *domain.CompanyRequest) {
	if req.MaxGroups != nil {
		c.MaxGroups = *req.MaxGroups
	}
	if req.MaxUsers != nil {
		c.MaxUsers = *req.MaxUsers
	}
	if req.MaxConnections != nil {
		c.MaxConnections = *req.MaxConnections
	}
	if req.MessagesPerMonth != nil {
		c.MessagesPerMonth = *req.MessagesPerMonth
	}
}

// ============================================================
// Company users: /v1/admin/companies/{id}/users
// ============================================================

// CreateCompanyUser adds a dashboard user to a tenant. The returned user
// carries no password hash.
func (s *AdminService) CreateCompanyUser(ctx context.Context, companyID string, req *domain.CreateUserRequest) (*domain.AppUser, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.CreateCompanyUser")
	defer span.End()

	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.companies.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "E-mail já cadastrado"}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = domain.RoleOperator
	}
	user, err := s.users.CreateUser(ctx, &domain.AppUser{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         role,
		CompanyID:    companyID,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("company user created",
		zap.String("company_id", companyID),
		zap.String("user_id", user.ID),
		zap.String("role", role),
	)
	user.PasswordHash = ""
	return user, nil
}

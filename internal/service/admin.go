package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var adminTracer = otel.Tracer("service/admin")

const (
	defaultCurrency = "BRL"
	defaultInterval = "monthly"
)

// AdminService orchestrates the back-office flows.
type AdminService struct {
	plans     port.PlanStore
	companies port.CompanyStore
	knowledge port.KnowledgeStore
	users     port.UserStore
	logger    *zap.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(plans port.PlanStore, companies port.CompanyStore, knowledge port.KnowledgeStore, users port.UserStore, logger *zap.Logger) *AdminService {
	return &AdminService{
		plans:     plans,
		companies: companies,
		knowledge: knowledge,
		users:     users,
		logger:    logger,
	}
}

// ============================================================
// Plans: /v1/admin/plans
// ============================================================

func (s *AdminService) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ListPlans")
	defer span.End()

	return s.plans.ListPlans(ctx, activeOnly)
}

func (s *AdminService) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.GetPlan")
	defer span.End()

	return s.plans.GetPlan(ctx, planID)
}

func (s *AdminService) CreatePlan(ctx context.Context, req *domain.PlanRequest) (*domain.Plan, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.CreatePlan")
	defer span.End()

	plan, err := planFromRequest(req)
	if err != nil {
		return nil, err
	}

	created, err := s.plans.CreatePlan(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	s.logger.Info("plan created", zap.String("plan_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// UpdatePlan replaces every field of a plan. Companies keep the limits
// they were created with.
func (s *AdminService) UpdatePlan(ctx context.Context, planID string, req *domain.PlanRequest) (*domain.Plan, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.UpdatePlan")
	defer span.End()

	plan, err := planFromRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return nil, err
	}

	if err := s.plans.UpdatePlan(ctx, planID, map[string]any{
		"name":               plan.Name,
		"price":              plan.Price,
		"currency":           plan.Currency,
		"interval":           plan.Interval,
		"max_groups":         plan.MaxGroups,
		"max_users":          plan.MaxUsers,
		"max_connections":    plan.MaxConnections,
		"messages_per_month": plan.MessagesPerMonth,
		"features":           plan.Features,
		"is_active":          plan.IsActive,
	}); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return s.plans.GetPlan(ctx, planID)
}

func (s *AdminService) DeletePlan(ctx context.Context, planID string) error {
	ctx, span := adminTracer.Start(ctx, "AdminService.DeletePlan")
	defer span.End()

	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return err
	}
	return s.plans.DeletePlan(ctx, planID)
}

func planFromRequest(req *domain.PlanRequest) (*domain.Plan, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, &domain.ErrValidation{Field: "price", Message: "Preço não pode ser negativo"}
	}

	plan := &domain.Plan{
		Name:             strings.TrimSpace(req.Name),
		Price:            req.Price.Round(2),
		Currency:         req.Currency,
		Interval:         req.Interval,
		MaxGroups:        req.MaxGroups,
		MaxUsers:         req.MaxUsers,
		MaxConnections:   req.MaxConnections,
		MessagesPerMonth: req.MessagesPerMonth,
		Features:         req.Features,
		IsActive:         true,
	}
	if plan.Currency == "" {
		plan.Currency = defaultCurrency
	}
	if plan.Interval == "" {
		plan.Interval = defaultInterval
	}
	if plan.Features == nil {
		plan.Features = []string{}
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	return plan, nil
}

package service

import (
	"context"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// DashboardService computes the overview cards with concurrent counts.
type DashboardService struct {
	connections   port.ConnectionStore
	groups        port.GroupStore
	messages      port.MessageStore
	notifications port.NotificationStore
	companies     port.CompanyStore
	plans         port.PlanStore
	knowledge     port.KnowledgeStore
	logger        *zap.Logger
	now           func() time.Time
}

// DashboardStores groups the stores the dashboard reads.
type DashboardStores struct {
	Connections   port.ConnectionStore
	Groups        port.GroupStore
	Messages      port.MessageStore
	Notifications port.NotificationStore
	Companies     port.CompanyStore
	Plans         port.PlanStore
	Knowledge     port.KnowledgeStore
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(stores DashboardStores, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		connections:   stores.Connections,
		groups:        stores.Groups,
		messages:      stores.Messages,
		notifications: stores.Notifications,
		companies:     stores.Companies,
		plans:         stores.Plans,
		knowledge:     stores.Knowledge,
		logger:        logger,
		now:           time.Now,
	}
}

// counter runs one count into dst.
type counter struct {
	dst *int
	fn  func(context.Context) (int, error)
}

func runCounts(ctx context.Context, counts []counter) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			n, err := c.fn(gctx)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}
	return g.Wait()
}

// Tenant returns the overview of one company.
func (s *DashboardService) Tenant(ctx context.Context, companyID string) (*domain.TenantDashboard, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Tenant")
	defer span.End()

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	d := &domain.TenantDashboard{}
	countConns := func(status domain.ConnectionStatus) func(context.Context) (int, error) {
		return func(ctx context.Context) (int, error) {
			return s.connections.CountConnections(ctx, companyID, status)
		}
	}

	err := runCounts(ctx, []counter{
		{&d.ConnectionsTotal, countConns("")},
		{&d.ConnectionsActive, countConns(domain.ConnectionActive)},
		{&d.ConnectionsAwaitingQR, countConns(domain.ConnectionAwaitingQR)},
		{&d.ConnectionsDisconnected, countConns(domain.ConnectionDisconnected)},
		{&d.Groups, func(ctx context.Context) (int, error) {
			return s.groups.CountGroups(ctx, companyID)
		}},
		{&d.MessagesSentThisMonth, func(ctx context.Context) (int, error) {
			return s.messages.CountMessages(ctx, companyID, domain.MessageSent, &monthStart)
		}},
		{&d.MessagesScheduled, func(ctx context.Context) (int, error) {
			return s.messages.CountMessages(ctx, companyID, domain.MessageScheduled, nil)
		}},
		{&d.UnreadNotifications, func(ctx context.Context) (int, error) {
			return s.notifications.CountNotifications(ctx, companyID, true)
		}},
	})
	if err != nil {
		s.logger.Error("tenant dashboard failed", zap.String("company_id", companyID), zap.Error(err))
		return nil, err
	}
	return d, nil
}

// Admin returns the back-office overview.
func (s *DashboardService) Admin(ctx context.Context) (*domain.AdminDashboard, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Admin")
	defer span.End()

	d := &domain.AdminDashboard{}
	err := runCounts(ctx, []counter{
		{&d.CompaniesTotal, func(ctx context.Context) (int, error) {
			return s.companies.CountCompanies(ctx, "")
		}},
		{&d.CompaniesActive, func(ctx context.Context) (int, error) {
			return s.companies.CountCompanies(ctx, domain.CompanyActive)
		}},
		{&d.CompaniesSuspended, func(ctx context.Context) (int, error) {
			return s.companies.CountCompanies(ctx, domain.CompanySuspended)
		}},
		{&d.PlansActive, func(ctx context.Context) (int, error) {
			return s.plans.CountPlans(ctx, true)
		}},
		{&d.ArticlesPublished, func(ctx context.Context) (int, error) {
			return s.knowledge.CountArticles(ctx, domain.ArticlePublished)
		}},
	})
	if err != nil {
		s.logger.Error("admin dashboard failed", zap.Error(err))
		return nil, err
	}
	return d, nil
}

package port

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// PlanStore handles subscription plans.
type PlanStore interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error)
	GetPlan(ctx context.Context, planID string) (*domain.Plan, error)
	CreatePlan(ctx context.Context, plan *domain.Plan) (*domain.Plan, error)
	UpdatePlan(ctx context.Context, planID string, patch map[string]any) error
	DeletePlan(ctx context.Context, planID string) error
	CountPlans(ctx context.Context, activeOnly bool) (int, error)
}

// CompanyStore handles tenants.
type CompanyStore interface {
	ListCompanies(ctx context.Context, status domain.CompanyStatus) ([]domain.Company, error)
	GetCompany(ctx context.Context, companyID string) (*domain.Company, error)
	GetCompanyByCNPJ(ctx context.Context, cnpj string) (*domain.Company, error) // nil, nil when absent
	CreateCompany(ctx context.Context, company *domain.Company) (*domain.Company, error)
	UpdateCompany(ctx context.Context, companyID string, patch map[string]any) error
	DeleteCompany(ctx context.Context, companyID string) error
	CountCompanies(ctx context.Context, status domain.CompanyStatus) (int, error)
}

// KnowledgeStore handles knowledge base articles.
type KnowledgeStore interface {
	ListArticles(ctx context.Context, visibility, status string) ([]domain.KnowledgeArticle, error)
	GetArticle(ctx context.Context, articleID string) (*domain.KnowledgeArticle, error)
	GetArticleBySlug(ctx context.Context, slug string) (*domain.KnowledgeArticle, error)
	CreateArticle(ctx context.Context, article *domain.KnowledgeArticle) (*domain.KnowledgeArticle, error)
	UpdateArticle(ctx context.Context, articleID string, patch map[string]any) error
	DeleteArticle(ctx context.Context, articleID string) error
	CountArticles(ctx context.Context, status string) (int, error)
}

// UserStore handles dashboard and back-office users.
// GetUserByEmail returns nil, nil when no user matches.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.AppUser, error)
	CreateUser(ctx context.Context, user *domain.AppUser) (*domain.AppUser, error)
}

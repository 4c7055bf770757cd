package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 9. Admin Master: Planos
// ============================================================

func listPlansHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/plans")
		defer span.End()

		plans, err := admin.ListPlans(ctx, queryBool(r, "active"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(plans, 1, len(plans)))
	}
}

func getPlanHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/plans/{planId}")
		defer span.End()

		plan, err := admin.GetPlan(ctx, chi.URLParam(r, "planId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, plan)
	}
}

func createPlanHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/plans")
		defer span.End()

		var req domain.PlanRequest
		if !decodeBody(w, r, &req) {
			return
		}

		plan, err := admin.CreatePlan(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, plan)
	}
}

func updatePlanHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/plans/{planId}")
		defer span.End()

		var req domain.PlanRequest
		if !decodeBody(w, r, &req) {
			return
		}

		plan, err := admin.UpdatePlan(ctx, chi.URLParam(r, "planId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, plan)
	}
}

func deletePlanHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/plans/{planId}")
		defer span.End()

		if err := admin.DeletePlan(ctx, chi.URLParam(r, "planId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// 10. Admin Master: Empresas
// ============================================================

func listCompaniesHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/companies")
		defer span.End()

		companies, err := admin.ListCompanies(ctx, domain.CompanyStatus(r.URL.Query().Get("status")))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		out := make([]domain.Company, len(companies))
		for i, c := range companies {
			out[i] = c.Redacted()
		}
		writeJSON(w, http.StatusOK, listResponse(out, 1, len(out)))
	}
}

func getCompanyHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/companies/{companyId}")
		defer span.End()

		company, err := admin.GetCompany(ctx, chi.URLParam(r, "companyId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company.Redacted())
	}
}

func createCompanyHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/companies")
		defer span.End()

		var req domain.CompanyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := admin.CreateCompany(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, company.Redacted())
	}
}

func updateCompanyHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/companies/{companyId}")
		defer span.End()

		var req domain.CompanyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		company, err := admin.UpdateCompany(ctx, chi.URLParam(r, "companyId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company.Redacted())
	}
}

func deleteCompanyHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/companies/{companyId}")
		defer span.End()

		if err := admin.DeleteCompany(ctx, chi.URLParam(r, "companyId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type companyStatusFunc func(ctx context.Context, companyID string) (*domain.Company, error)

func companyStatusHandler(fn companyStatusFunc, action string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/companies/{companyId}/"+action)
		defer span.End()

		company, err := fn(ctx, chi.URLParam(r, "companyId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company.Redacted())
	}
}

func createCompanyUserHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/companies/{companyId}/users")
		defer span.End()

		var req domain.CreateUserRequest
		if !decodeBody(w, r, &req) {
			return
		}

		user, err := admin.CreateCompanyUser(ctx, chi.URLParam(r, "companyId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// ============================================================
// 11. Admin Master: Base de conhecimento
// ============================================================

func listArticlesHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/knowledge")
		defer span.End()

		q := r.URL.Query()
		articles, err := admin.ListArticles(ctx, q.Get("visibility"), q.Get("status"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, listResponse(articles, 1, len(articles)))
	}
}

func getArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/knowledge/{articleId}")
		defer span.End()

		article, err := admin.GetArticle(ctx, chi.URLParam(r, "articleId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, article)
	}
}

func getArticleBySlugHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/knowledge/slug/{slug}")
		defer span.End()

		article, err := admin.GetArticleBySlug(ctx, chi.URLParam(r, "slug"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, article)
	}
}

func createArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/knowledge")
		defer span.End()

		var req domain.ArticleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		article, err := admin.CreateArticle(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, article)
	}
}

func updateArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/knowledge/{articleId}")
		defer span.End()

		var req domain.ArticleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		article, err := admin.UpdateArticle(ctx, chi.URLParam(r, "articleId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, article)
	}
}

func publishArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/knowledge/{articleId}/publish")
		defer span.End()

		article, err := admin.PublishArticle(ctx, chi.URLParam(r, "articleId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, article)
	}
}

func deleteArticleHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/knowledge/{articleId}")
		defer span.End()

		if err := admin.DeleteArticle(ctx, chi.URLParam(r, "articleId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func adminDashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/dashboard")
		defer span.End()

		dash, err := svc.Admin(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, dash)
	}
}

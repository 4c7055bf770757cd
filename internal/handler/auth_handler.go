package handler

import (
	"net/http"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 1. Autenticação
// ============================================================

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type meResponse struct {
	UserID      string `json:"userId"`
	CompanyID   string `json:"companyId,omitempty"`
	Role        string `json:"role"`
	AdminMaster bool   `json:"adminMaster"`
}

func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, meResponse{
			UserID:      p.UserID,
			CompanyID:   p.CompanyID,
			Role:        p.Role,
			AdminMaster: p.IsAdminMaster(),
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 12

// AuthService authenticates dashboard and back-office users.
type AuthService struct {
	users     port.UserStore
	companies port.CompanyStore
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users port.UserStore, companies port.CompanyStore, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		companies: companies,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := Validate(req); err != nil {
		return nil, err
	}
	email := req.Email

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.Active {
		s.logger.Warn("login: unknown or inactive user", zap.String("email", email))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}
	span.SetAttributes(attribute.String("user.id", user.ID), attribute.String("user.role", user.Role))

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: wrong password", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	if user.Role != domain.RoleAdminMaster {
		if err := s.checkCompany(ctx, user); err != nil {
			return nil, err
		}
	}

	token, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role),
	)

	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		UserID:      user.ID,
		Name:        user.Name,
		Role:        user.Role,
		CompanyID:   user.CompanyID,
	}, nil
}

// checkCompany refuses tenant users whose company is missing or not active.
func (s *AuthService) checkCompany(ctx context.Context, user *domain.AppUser) error {
	if user.CompanyID == "" {
		return &domain.ErrUnauthorized{Message: "Usuário sem empresa vinculada"}
	}
	company, err := s.companies.GetCompany(ctx, user.CompanyID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return &domain.ErrUnauthorized{Message: "Usuário sem empresa vinculada"}
		}
		return fmt.Errorf("get company: %w", err)
	}
	if company.Status != domain.CompanyActive {
		s.logger.Warn("login: company not active",
			zap.String("company_id", company.ID),
			zap.String("status", string(company.Status)),
		)
		return &domain.ErrForbidden{Action: "empresa " + string(company.Status)}
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in app_users.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

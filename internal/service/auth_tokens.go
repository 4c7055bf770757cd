package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "wa-groups-bfa"

// ============================================================
// Token validation (used by the auth middleware)
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub       string `json:"sub"`
	CompanyID string `json:"company_id,omitempty"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity carried by the claims.
func (c *JWTClaims) Principal() domain.Principal {
	return domain.Principal{UserID: c.Sub, CompanyID: c.CompanyID, Role: c.Role}
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	if claims.Role != domain.RoleAdminMaster && claims.CompanyID == "" {
		return nil, &domain.ErrUnauthorized{Message: "Token sem empresa"}
	}
	return claims, nil
}

func (s *AuthService) signAccessToken(user *domain.AppUser) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:       user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		Type:      "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

package domain

// ============================================================
// Auth: users of the dashboard and of the Admin Master
// ============================================================

const (
	RoleAdminMaster  = "admin_master"
	RoleCompanyAdmin = "company_admin"
	RoleOperator     = "operator"
)

// AppUser maps the app_users table.
type AppUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash,omitempty"`
	Role         string `json:"role"`
	CompanyID    string `json:"company_id,omitempty"`
	Active       bool   `json:"active"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CompanyID   string `json:"companyId,omitempty"`
}

// CreateUserRequest is the body for POST /v1/admin/companies/{id}/users.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=company_admin operator"`
}

// Principal is the authenticated caller extracted from the access token.
type Principal struct {
	UserID    string
	CompanyID string
	Role      string
}

// IsAdminMaster reports whether the caller operates the back-office.
func (p Principal) IsAdminMaster() bool {
	return p.Role == RoleAdminMaster
}

package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/handler"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/cache"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockUsers struct{ users map[string]*domain.AppUser }

func (m *mockUsers) GetUserByEmail(_ context.Context, email string) (*domain.AppUser, error) {
	return m.users[email], nil
}

func (m *mockUsers) CreateUser(_ context.Context, u *domain.AppUser) (*domain.AppUser, error) {
	m.users[u.Email] = u
	return u, nil
}

type mockCompanies struct{ company domain.Company }

func (m *mockCompanies) ListCompanies(context.Context, domain.CompanyStatus) ([]domain.Company, error) {
	return []domain.Company{m.company}, nil
}

func (m *mockCompanies) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	if id != m.company.ID {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	c := m.company
	return &c, nil
}

func (m *mockCompanies) GetCompanyByCNPJ(context.Context, string) (*domain.Company, error) {
	return nil, nil
}

func (m *mockCompanies) CreateCompany(_ context.Context, c *domain.Company) (*domain.Company, error) {
	return c, nil
}

func (m *mockCompanies) UpdateCompany(context.Context, string, map[string]any) error { return nil }
func (m *mockCompanies) DeleteCompany(context.Context, string) error                 { return nil }
func (m *mockCompanies) CountCompanies(context.Context, domain.CompanyStatus) (int, error) {
	return 1, nil
}

type mockConnections struct{ conns []domain.Connection }

func (m *mockConnections) ListConnections(_ context.Context, companyID string) ([]domain.Connection, error) {
	var out []domain.Connection
	for _, c := range m.conns {
		if companyID == "" || c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConnections) GetConnection(_ context.Context, companyID, id string) (*domain.Connection, error) {
	for _, c := range m.conns {
		if c.ID == id && (companyID == "" || c.CompanyID == companyID) {
			c := c
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "connection", ID: id}
}

func (m *mockConnections) CreateConnection(_ context.Context, c *domain.Connection) (*domain.Connection, error) {
	c.ID = "conn-new"
	m.conns = append(m.conns, *c)
	return c, nil
}

func (m *mockConnections) UpdateConnection(context.Context, string, map[string]any) error { return nil }
func (m *mockConnections) DeleteConnection(context.Context, string) error                 { return nil }
func (m *mockConnections) CountConnections(context.Context, string, domain.ConnectionStatus) (int, error) {
	return len(m.conns), nil
}

// failingGateway rejects every call like an unreachable Evolution API.
type failingGateway struct{}

func gatewayDown(op string) error {
	return &domain.ErrExternalService{Service: "evolution/" + op, Status: 500, Err: errors.New("boom")}
}

func (failingGateway) CreateInstance(context.Context, string) error {
	return gatewayDown("create_instance")
}
func (failingGateway) ConnectInstance(context.Context, string) (*domain.ConnectResult, error) {
	return nil, gatewayDown("connect_instance")
}
func (failingGateway) GetInstanceInfo(context.Context, string) (*domain.InstanceInfo, error) {
	return nil, gatewayDown("instance_info")
}
func (failingGateway) DisconnectInstance(context.Context, string) error { return gatewayDown("logout") }
func (failingGateway) DeleteInstance(context.Context, string) error     { return gatewayDown("delete") }
func (failingGateway) FetchGroups(context.Context, string) ([]domain.GatewayGroup, error) {
	return nil, gatewayDown("fetch_groups")
}
func (failingGateway) CreateGroup(context.Context, string, string, string, []string) (*domain.GatewayGroup, error) {
	return nil, gatewayDown("create_group")
}
func (failingGateway) FetchParticipants(context.Context, string, string) ([]domain.GatewayParticipant, error) {
	return nil, gatewayDown("participants")
}
func (failingGateway) UpdateParticipants(context.Context, string, string, domain.ParticipantAction, []string) error {
	return gatewayDown("update_participants")
}
func (failingGateway) SendText(context.Context, string, string, string) (*domain.SendResult, error) {
	return nil, gatewayDown("send_text")
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, domain.NotificationLevel, string, string) {}

// --- Fixture ---

const (
	adminEmail   = "admin@wa.test"
	tenantEmail  = "dono@empresa.test"
	testPassword = "segredo123"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &mockUsers{users: map[string]*domain.AppUser{
		adminEmail:  {ID: "u-admin", Email: adminEmail, PasswordHash: hash, Role: domain.RoleAdminMaster, Active: true},
		tenantEmail: {ID: "u-owner", Email: tenantEmail, PasswordHash: hash, Role: domain.RoleCompanyAdmin, CompanyID: "co-1", Active: true},
	}}
	companies := &mockCompanies{company: domain.Company{ID: "co-1", Name: "Empresa", Status: domain.CompanyActive}}
	conns := &mockConnections{conns: []domain.Connection{
		{ID: "conn-1", CompanyID: "co-1", Name: "Vendas", InstanceName: "vendas-1", Status: domain.ConnectionAwaitingQR, APIKey: "secret"},
		{ID: "conn-2", CompanyID: "co-2", Name: "Outra", InstanceName: "outra-1", Status: domain.ConnectionActive},
	}}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	resolver := port.GatewayResolver(func(domain.GatewayCredentials) port.Gateway { return failingGateway{} })
	infoCache := cache.New[*domain.InstanceInfo](time.Minute)
	t.Cleanup(infoCache.Close)

	connSvc := service.NewConnectionService(conns, companies, resolver, infoCache, nopNotifier{}, metrics, logger)
	pairing := service.NewPairingService(connSvc, nopNotifier{}, metrics, service.PairingConfig{PollInterval: time.Hour}, logger)
	t.Cleanup(pairing.Close)

	return handler.NewRouter(handler.Services{
		Auth:        service.NewAuthService(users, companies, "test-secret", time.Hour, logger),
		Connections: connSvc,
		Pairing:     pairing,
		Probes: []handler.HealthProbe{
			{Name: "supabase", Check: func(context.Context) error { return nil }},
		},
	}, metrics, logger)
}

func login(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + testPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(router, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_DegradedDependency(t *testing.T) {
	router := handler.NewRouter(handler.Services{Probes: []handler.HealthProbe{
		{Name: "evolution", Check: func(context.Context) error { return errors.New("down") }},
	}}, observability.NewMetrics(), zap.NewNop())

	rec := do(router, http.MethodGet, "/healthz", "", "")
	var health domain.HealthStatus
	json.NewDecoder(rec.Body).Decode(&health)

	if health.Status != "degraded" {
		t.Errorf("expected degraded, got %s", health.Status)
	}
	if len(health.Services) != 2 || health.Services[1].Name != "evolution" {
		t.Errorf("unexpected services: %+v", health.Services)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(router, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(router, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestV1_Unconfigured(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	rec := do(router, http.MethodGet, "/v1/connections", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// --- Auth ---

func TestAuth_MissingToken(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/v1/connections", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_Me(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	rec := do(router, http.MethodGet, "/v1/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var me struct {
		CompanyID string `json:"companyId"`
		Role      string `json:"role"`
	}
	json.NewDecoder(rec.Body).Decode(&me)
	if me.CompanyID != "co-1" || me.Role != domain.RoleCompanyAdmin {
		t.Errorf("unexpected principal: %+v", me)
	}
}

func TestAuth_WrongPassword(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodPost, "/v1/auth/login", "", `{"email":"`+tenantEmail+`","password":"errada123"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutes_RequireAdminMaster(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	rec := do(router, http.MethodGet, "/v1/admin/plans", token, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestTenantRoutes_RequireCompany(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, adminEmail)

	rec := do(router, http.MethodGet, "/v1/connections", token, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

// --- Connections & pairing ---

func TestConnections_ScopedAndRedacted(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	rec := do(router, http.MethodGet, "/v1/connections", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list domain.ListResponse[domain.Connection]
	json.NewDecoder(rec.Body).Decode(&list)

	if len(list.Data) != 1 || list.Data[0].ID != "conn-1" {
		t.Fatalf("expected only the company's connection, got %+v", list.Data)
	}
	if list.Data[0].APIKey == "secret" {
		t.Error("expected api key to be redacted")
	}

	rec = do(router, http.MethodGet, "/v1/connections/conn-2", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another company's connection, got %d", rec.Code)
	}
}

func TestPairing_GatewayFailureIsGeneric(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	rec := do(router, http.MethodPost, "/v1/connections/conn-1/pairing", token, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != domain.GatewayErrorMessage {
		t.Errorf("expected generic gateway message, got %q", body.Error)
	}

	rec = do(router, http.MethodGet, "/v1/connections/conn-1/pairing", token, "")
	var sess domain.PairingSession
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.State != domain.PairingError {
		t.Errorf("expected error state, got %s", sess.State)
	}

	rec = do(router, http.MethodGet, "/v1/connections/conn-1/pairing/qr.png", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a qr code, got %d", rec.Code)
	}
}

func TestPairing_StatusWithoutSession(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	rec := do(router, http.MethodGet, "/v1/connections/conn-1/pairing", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPairingMetrics(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, tenantEmail)

	do(router, http.MethodPost, "/v1/connections/conn-1/pairing", token, `{"reconnect":true}`)

	rec := do(router, http.MethodGet, "/v1/metrics/pairing", token, "")
	var m domain.PairingMetrics
	json.NewDecoder(rec.Body).Decode(&m)
	if m.Started != 1 || m.Failed != 1 {
		t.Errorf("expected 1 started and 1 failed, got %+v", m)
	}
}

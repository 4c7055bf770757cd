package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Mocks ---

type memPlans struct {
	mu   sync.Mutex
	rows map[string]*domain.Plan
}

func newMemPlans(plans ...domain.Plan) *memPlans {
	m := &memPlans{rows: map[string]*domain.Plan{}}
	for i := range plans {
		p := plans[i]
		m.rows[p.ID] = &p
	}
	return m
}

func (m *memPlans) ListPlans(_ context.Context, activeOnly bool) ([]domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Plan
	for _, p := range m.rows {
		if !activeOnly || p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPlans) GetPlan(_ context.Context, id string) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "plan", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (m *memPlans) CreatePlan(_ context.Context, p *domain.Plan) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.ID = nextID("plan")
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memPlans) UpdatePlan(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		if v, ok := patch["name"].(string); ok {
			p.Name = v
		}
		if v, ok := patch["price"].(decimal.Decimal); ok {
			p.Price = v
		}
	}
	return nil
}

func (m *memPlans) DeletePlan(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memPlans) CountPlans(ctx context.Context, activeOnly bool) (int, error) {
	rows, _ := m.ListPlans(ctx, activeOnly)
	return len(rows), nil
}

type memKnowledge struct {
	mu   sync.Mutex
	rows map[string]*domain.KnowledgeArticle
}

func newMemKnowledge() *memKnowledge {
	return &memKnowledge{rows: map[string]*domain.KnowledgeArticle{}}
}

func (m *memKnowledge) ListArticles(_ context.Context, visibility, status string) ([]domain.KnowledgeArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.KnowledgeArticle
	for _, a := range m.rows {
		if (visibility == "" || a.Visibility == visibility) && (status == "" || a.Status == status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memKnowledge) GetArticle(_ context.Context, id string) (*domain.KnowledgeArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "knowledge_article", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (m *memKnowledge) GetArticleBySlug(_ context.Context, slug string) (*domain.KnowledgeArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Slug == slug {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "knowledge_article", ID: slug}
}

func (m *memKnowledge) CreateArticle(_ context.Context, a *domain.KnowledgeArticle) (*domain.KnowledgeArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.ID = nextID("art")
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memKnowledge) UpdateArticle(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		if v, ok := patch["status"].(string); ok {
			a.Status = v
		}
		if v, ok := patch["slug"].(string); ok {
			a.Slug = v
		}
		if v, ok := patch["title"].(string); ok {
			a.Title = v
		}
	}
	return nil
}

func (m *memKnowledge) DeleteArticle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memKnowledge) CountArticles(ctx context.Context, status string) (int, error) {
	rows, _ := m.ListArticles(ctx, "", status)
	return len(rows), nil
}

type memUsers struct {
	mu   sync.Mutex
	rows map[string]*domain.AppUser
}

func newMemUsers(users ...domain.AppUser) *memUsers {
	m := &memUsers{rows: map[string]*domain.AppUser{}}
	for i := range users {
		u := users[i]
		m.rows[u.Email] = &u
	}
	return m
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*domain.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) CreateUser(_ context.Context, u *domain.AppUser) (*domain.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	cp.ID = nextID("usr")
	m.rows[cp.Email] = &cp
	out := cp
	return &out, nil
}

type adminFixture struct {
	plans     *memPlans
	companies *memCompanies
	knowledge *memKnowledge
	users     *memUsers
	svc       *service.AdminService
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		plans: newMemPlans(domain.Plan{
			ID: "plan-pro", Name: "Pro", Price: decimal.RequireFromString("199.90"),
			MaxGroups: 50, MaxUsers: 10, MaxConnections: 3, MessagesPerMonth: 20000, IsActive: true,
		}),
		companies: newMemCompanies(activeCompany()),
		knowledge: newMemKnowledge(),
		users:     newMemUsers(),
	}
	f.svc = service.NewAdminService(f.plans, f.companies, f.knowledge, f.users, zap.NewNop())
	return f
}

// --- Tests ---

func TestCreatePlan_Defaults(t *testing.T) {
	f := newAdminFixture()

	plan, err := f.svc.CreatePlan(context.Background(), &domain.PlanRequest{
		Name:  "Básico",
		Price: decimal.RequireFromString("49.999"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if plan.Currency != "BRL" || plan.Interval != "monthly" || !plan.IsActive {
		t.Errorf("expected defaults, got %+v", plan)
	}
	if !plan.Price.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("expected price rounded to cents, got %s", plan.Price)
	}
}

func TestCreatePlan_NegativePrice(t *testing.T) {
	f := newAdminFixture()

	_, err := f.svc.CreatePlan(context.Background(), &domain.PlanRequest{Name: "Grátis", Price: decimal.NewFromInt(-1)})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "price" {
		t.Fatalf("expected price validation error, got %v", err)
	}
}

func TestCreateCompany_CopiesPlanLimits(t *testing.T) {
	f := newAdminFixture()
	groups := 5

	co, err := f.svc.CreateCompany(context.Background(), &domain.CompanyRequest{
		Name:      "Padaria Pão Quente",
		CNPJ:      "11.444.777/0001-61",
		Email:     "Contato@PaoQuente.com.br",
		PlanID:    "plan-pro",
		MaxGroups: &groups,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if co.CNPJ != "11444777000161" || co.Email != "contato@paoquente.com.br" {
		t.Errorf("expected normalized cnpj and email, got %q %q", co.CNPJ, co.Email)
	}
	if co.MaxGroups != 5 || co.MaxConnections != 3 || co.MessagesPerMonth != 20000 {
		t.Errorf("expected plan limits with override, got %+v", co)
	}
	if co.Status != domain.CompanyActive {
		t.Errorf("expected active, got %s", co.Status)
	}
}

func TestCreateCompany_DuplicateCNPJ(t *testing.T) {
	f := newAdminFixture()

	_, err := f.svc.CreateCompany(context.Background(), &domain.CompanyRequest{
		Name:  "Outra Acme",
		CNPJ:  "11.222.333/0001-81",
		Email: "acme@example.com",
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateCompany_InvalidCNPJ(t *testing.T) {
	f := newAdminFixture()

	_, err := f.svc.CreateCompany(context.Background(), &domain.CompanyRequest{
		Name:  "Acme",
		CNPJ:  "11.222.333/0001-00",
		Email: "acme@example.com",
	})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "cnpj" {
		t.Fatalf("expected cnpj validation error, got %v", err)
	}
}

func TestSuspendAndActivateCompany(t *testing.T) {
	f := newAdminFixture()

	co, err := f.svc.SuspendCompany(context.Background(), testCompany)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if co.Status != domain.CompanySuspended {
		t.Errorf("expected suspended, got %s", co.Status)
	}

	co, err = f.svc.ActivateCompany(context.Background(), testCompany)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if co.Status != domain.CompanyActive {
		t.Errorf("expected active, got %s", co.Status)
	}
}

func TestCreateCompanyUser(t *testing.T) {
	f := newAdminFixture()

	u, err := f.svc.CreateCompanyUser(context.Background(), testCompany, &domain.CreateUserRequest{
		Email:    "Op@Acme.com",
		Name:     "Operadora",
		Password: "s3nh4-forte",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if u.PasswordHash != "" {
		t.Error("expected hash cleared from the response")
	}
	if u.Role != domain.RoleOperator || u.CompanyID != testCompany {
		t.Errorf("unexpected user %+v", u)
	}

	stored, _ := f.users.GetUserByEmail(context.Background(), "op@acme.com")
	if stored == nil {
		t.Fatal("expected user stored with lowercased email")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3nh4-forte")); err != nil {
		t.Errorf("expected bcrypt hash of the password: %v", err)
	}

	_, err = f.svc.CreateCompanyUser(context.Background(), testCompany, &domain.CreateUserRequest{
		Email: "op@acme.com", Name: "Outra", Password: "s3nh4-forte",
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestCreateArticle_SlugCollision(t *testing.T) {
	f := newAdminFixture()
	req := &domain.ArticleRequest{Title: "Como conectar o WhatsApp", Content: "Abra o painel..."}

	first, err := f.svc.CreateArticle(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := f.svc.CreateArticle(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if first.Slug != "como-conectar-o-whatsapp" {
		t.Errorf("unexpected slug %q", first.Slug)
	}
	if second.Slug != "como-conectar-o-whatsapp-2" {
		t.Errorf("expected suffixed slug, got %q", second.Slug)
	}
	if first.Status != domain.ArticleDraft || first.Visibility != domain.ArticlePublic {
		t.Errorf("expected public draft, got %s/%s", first.Visibility, first.Status)
	}
}

func TestPublishArticle(t *testing.T) {
	f := newAdminFixture()
	a, _ := f.svc.CreateArticle(context.Background(), &domain.ArticleRequest{Title: "Planos", Content: "..."})

	pub, err := f.svc.PublishArticle(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pub.Status != domain.ArticlePublished {
		t.Errorf("expected published, got %s", pub.Status)
	}

	got, err := f.svc.GetArticleBySlug(context.Background(), "planos")
	if err != nil || got.ID != a.ID {
		t.Errorf("expected lookup by slug, got %v %v", got, err)
	}
}

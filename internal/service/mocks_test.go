package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/cache"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"
	"github.com/boddenberg/wa-groups-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

var seq atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

type memConnections struct {
	mu      sync.Mutex
	rows    map[string]*domain.Connection
	patches []map[string]any
	updErr  error
}

func newMemConnections(conns ...domain.Connection) *memConnections {
	m := &memConnections{rows: map[string]*domain.Connection{}}
	for i := range conns {
		c := conns[i]
		m.rows[c.ID] = &c
	}
	return m
}

func (m *memConnections) ListConnections(_ context.Context, companyID string) ([]domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connection
	for _, c := range m.rows {
		if c.CompanyID == companyID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memConnections) GetConnection(_ context.Context, companyID, id string) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || (companyID != "" && c.CompanyID != companyID) {
		return nil, &domain.ErrNotFound{Resource: "connection", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *memConnections) CreateConnection(_ context.Context, c *domain.Connection) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.ID = nextID("conn")
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memConnections) UpdateConnection(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil {
		return m.updErr
	}
	m.patches = append(m.patches, patch)
	c, ok := m.rows[id]
	if !ok {
		return nil
	}
	if v, ok := patch["status"].(domain.ConnectionStatus); ok {
		c.Status = v
	}
	if v, ok := patch["number"].(string); ok {
		c.Number = v
	}
	if v, ok := patch["name"].(string); ok {
		c.Name = v
	}
	return nil
}

func (m *memConnections) DeleteConnection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memConnections) CountConnections(_ context.Context, companyID string, status domain.ConnectionStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.rows {
		if c.CompanyID == companyID && (status == "" || c.Status == status) {
			n++
		}
	}
	return n, nil
}

func (m *memConnections) patchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patches)
}

func (m *memConnections) status(id string) domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

type memCompanies struct {
	mu   sync.Mutex
	rows map[string]*domain.Company
}

func newMemCompanies(cos ...domain.Company) *memCompanies {
	m := &memCompanies{rows: map[string]*domain.Company{}}
	for i := range cos {
		c := cos[i]
		m.rows[c.ID] = &c
	}
	return m
}

func (m *memCompanies) ListCompanies(_ context.Context, status domain.CompanyStatus) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Company
	for _, c := range m.rows {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCompanies) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *memCompanies) GetCompanyByCNPJ(_ context.Context, cnpj string) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.CNPJ == cnpj {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCompanies) CreateCompany(_ context.Context, c *domain.Company) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.ID = nextID("co")
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memCompanies) UpdateCompany(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil
	}
	if v, ok := patch["status"].(domain.CompanyStatus); ok {
		c.Status = v
	}
	if v, ok := patch["cnpj"].(string); ok {
		c.CNPJ = v
	}
	return nil
}

func (m *memCompanies) DeleteCompany(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memCompanies) CountCompanies(ctx context.Context, status domain.CompanyStatus) (int, error) {
	rows, _ := m.ListCompanies(ctx, status)
	return len(rows), nil
}

type memGroups struct {
	mu         sync.Mutex
	rows       map[string]*domain.Group
	moderation map[string]*domain.ModerationSettings
	patches    map[string][]map[string]any
}

func newMemGroups(groups ...domain.Group) *memGroups {
	m := &memGroups{
		rows:       map[string]*domain.Group{},
		moderation: map[string]*domain.ModerationSettings{},
		patches:    map[string][]map[string]any{},
	}
	for i := range groups {
		g := groups[i]
		m.rows[g.ID] = &g
	}
	return m
}

func (m *memGroups) ListGroups(_ context.Context, companyID, connectionID string) ([]domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Group
	for _, g := range m.rows {
		if g.CompanyID == companyID && (connectionID == "" || g.ConnectionID == connectionID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memGroups) GetGroup(_ context.Context, companyID, id string) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.rows[id]
	if !ok || (companyID != "" && g.CompanyID != companyID) {
		return nil, &domain.ErrNotFound{Resource: "group", ID: id}
	}
	cp := *g
	return &cp, nil
}

func (m *memGroups) GetGroupByJID(_ context.Context, connectionID, jid string) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.rows {
		if g.ConnectionID == connectionID && g.GroupJID == jid {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memGroups) CreateGroup(_ context.Context, g *domain.Group) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.ID = nextID("grp")
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memGroups) UpdateGroup(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches[id] = append(m.patches[id], patch)
	g, ok := m.rows[id]
	if !ok {
		return nil
	}
	if v, ok := patch["name"].(string); ok {
		g.Name = v
	}
	if v, ok := patch["members_count"].(int); ok {
		g.MembersCount = v
	}
	if v, ok := patch["messages_count"].(int); ok {
		g.MessagesCount = v
	}
	return nil
}

func (m *memGroups) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memGroups) CountGroups(_ context.Context, companyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.rows {
		if g.CompanyID == companyID && g.Status == domain.GroupActive {
			n++
		}
	}
	return n, nil
}

func (m *memGroups) GetModerationSettings(_ context.Context, groupID string) (*domain.ModerationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.moderation[groupID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memGroups) UpsertModerationSettings(_ context.Context, s *domain.ModerationSettings) (*domain.ModerationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.moderation[s.GroupID] = &cp
	out := cp
	return &out, nil
}

func (m *memGroups) get(id string) domain.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type memMessages struct {
	mu      sync.Mutex
	rows    map[string]*domain.Message
	order   []string
	countFn func(status domain.MessageStatus, since *time.Time) int
	failFor string // CreateMessage fails for this group id
}

func newMemMessages(msgs ...domain.Message) *memMessages {
	m := &memMessages{rows: map[string]*domain.Message{}}
	for i := range msgs {
		msg := msgs[i]
		m.rows[msg.ID] = &msg
		m.order = append(m.order, msg.ID)
	}
	return m
}

func (m *memMessages) ListMessages(_ context.Context, companyID string, status domain.MessageStatus, _, _ int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, id := range m.order {
		msg := m.rows[id]
		if msg.CompanyID == companyID && (status == "" || msg.Status == status) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *memMessages) GetMessage(_ context.Context, companyID, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.rows[id]
	if !ok || (companyID != "" && msg.CompanyID != companyID) {
		return nil, &domain.ErrNotFound{Resource: "message", ID: id}
	}
	cp := *msg
	return &cp, nil
}

func (m *memMessages) CreateMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor != "" && msg.GroupID == m.failFor {
		return nil, &domain.ErrExternalService{Service: "supabase", Status: 500, Err: errors.New("insert failed")}
	}
	cp := *msg
	cp.ID = nextID("msg")
	m.rows[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	out := cp
	return &out, nil
}

func (m *memMessages) UpdateMessage(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.rows[id]; ok {
		applyMessagePatch(msg, patch)
	}
	return nil
}

func (m *memMessages) TransitionMessage(_ context.Context, id string, from domain.MessageStatus, patch map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.rows[id]
	if !ok || msg.Status != from {
		return false, nil
	}
	applyMessagePatch(msg, patch)
	return true, nil
}

func applyMessagePatch(msg *domain.Message, patch map[string]any) {
	if v, ok := patch["status"].(domain.MessageStatus); ok {
		msg.Status = v
	}
	if v, ok := patch["error"].(string); ok {
		msg.Error = v
	}
	if v, ok := patch["sent_at"].(string); ok {
		t, _ := time.Parse(time.RFC3339, v)
		msg.SentAt = &t
	}
}

func (m *memMessages) ListDueMessages(_ context.Context, before time.Time, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, id := range m.order {
		msg := m.rows[id]
		if msg.Status == domain.MessageScheduled && msg.ScheduledAt != nil && !msg.ScheduledAt.After(before) {
			out = append(out, *msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memMessages) CountMessages(_ context.Context, companyID string, status domain.MessageStatus, since *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countFn != nil {
		return m.countFn(status, since), nil
	}
	n := 0
	for _, msg := range m.rows {
		if msg.CompanyID == companyID && (status == "" || msg.Status == status) {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) get(id string) domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type memNotifications struct {
	mu   sync.Mutex
	rows []domain.Notification
}

func (m *memNotifications) CreateNotification(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	cp.ID = nextID("ntf")
	m.rows = append(m.rows, cp)
	return nil
}

func (m *memNotifications) ListNotifications(_ context.Context, companyID string, unreadOnly bool, _, _ int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.rows {
		if n.CompanyID == companyID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) MarkNotificationRead(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].CompanyID == companyID {
			m.rows[i].Read = true
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "notification", ID: id}
}

func (m *memNotifications) CountNotifications(ctx context.Context, companyID string, unreadOnly bool) (int, error) {
	rows, _ := m.ListNotifications(ctx, companyID, unreadOnly, 1, 100)
	return len(rows), nil
}

// recNotifier records notifications instead of persisting them.
type recNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *recNotifier) Notify(_ context.Context, companyID string, level domain.NotificationLevel, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, domain.Notification{CompanyID: companyID, Level: level, Title: title, Message: message})
}

func (r *recNotifier) count(level domain.NotificationLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}

func (r *recNotifier) last() domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return domain.Notification{}
	}
	return r.items[len(r.items)-1]
}

type memQueue struct {
	mu   sync.Mutex
	jobs []domain.DispatchJob
	err  error
}

func (q *memQueue) Enqueue(_ context.Context, job domain.DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// fakeGateway is a programmable port.Gateway. Unset funcs succeed.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	createInstance     func(name string) error
	connectInstance    func(name string) (*domain.ConnectResult, error)
	getInstanceInfo    func(name string) (*domain.InstanceInfo, error)
	disconnectInstance func(name string) error
	deleteInstance     func(name string) error
	fetchGroups        func(name string) ([]domain.GatewayGroup, error)
	createGroup        func(name, subject string, participants []string) (*domain.GatewayGroup, error)
	fetchParticipants  func(name, jid string) ([]domain.GatewayParticipant, error)
	updateParticipants func(name, jid string, action domain.ParticipantAction, participants []string) error
	sendText           func(name, to, text string) (*domain.SendResult, error)
}

var _ port.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) CreateInstance(_ context.Context, name string) error {
	f.record("create")
	if f.createInstance != nil {
		return f.createInstance(name)
	}
	return nil
}

func (f *fakeGateway) ConnectInstance(_ context.Context, name string) (*domain.ConnectResult, error) {
	f.record("connect")
	if f.connectInstance != nil {
		return f.connectInstance(name)
	}
	return &domain.ConnectResult{State: domain.InstanceConnecting, Code: "2@abc", Base64: ""}, nil
}

func (f *fakeGateway) GetInstanceInfo(_ context.Context, name string) (*domain.InstanceInfo, error) {
	f.record("info")
	if f.getInstanceInfo != nil {
		return f.getInstanceInfo(name)
	}
	return &domain.InstanceInfo{Name: name, State: domain.InstanceConnecting}, nil
}

func (f *fakeGateway) DisconnectInstance(_ context.Context, name string) error {
	f.record("logout")
	if f.disconnectInstance != nil {
		return f.disconnectInstance(name)
	}
	return nil
}

func (f *fakeGateway) DeleteInstance(_ context.Context, name string) error {
	f.record("delete")
	if f.deleteInstance != nil {
		return f.deleteInstance(name)
	}
	return nil
}

func (f *fakeGateway) FetchGroups(_ context.Context, name string) ([]domain.GatewayGroup, error) {
	f.record("fetch_groups")
	if f.fetchGroups != nil {
		return f.fetchGroups(name)
	}
	return nil, nil
}

func (f *fakeGateway) CreateGroup(_ context.Context, name, subject, _ string, participants []string) (*domain.GatewayGroup, error) {
	f.record("create_group")
	if f.createGroup != nil {
		return f.createGroup(name, subject, participants)
	}
	return &domain.GatewayGroup{JID: "1203630@g.us", Subject: subject}, nil
}

func (f *fakeGateway) FetchParticipants(_ context.Context, name, jid string) ([]domain.GatewayParticipant, error) {
	f.record("participants")
	if f.fetchParticipants != nil {
		return f.fetchParticipants(name, jid)
	}
	return nil, nil
}

func (f *fakeGateway) UpdateParticipants(_ context.Context, name, jid string, action domain.ParticipantAction, participants []string) error {
	f.record("update_participants")
	if f.updateParticipants != nil {
		return f.updateParticipants(name, jid, action, participants)
	}
	return nil
}

func (f *fakeGateway) SendText(_ context.Context, name, to, text string) (*domain.SendResult, error) {
	f.record("send")
	if f.sendText != nil {
		return f.sendText(name, to, text)
	}
	return &domain.SendResult{MessageID: "BAE5", Status: "PENDING"}, nil
}

func gatewayErr(op string, status int) error {
	return &domain.ErrExternalService{Service: "evolution/" + op, Status: status, Err: fmt.Errorf("status %d", status)}
}

// --- fixtures ---

const testCompany = "co-1"

func activeCompany() domain.Company {
	return domain.Company{ID: testCompany, Name: "Acme", CNPJ: "11222333000181", Status: domain.CompanyActive}
}

// resolverFor returns a resolver that always hands out gw and records the
// credentials it was asked for.
func resolverFor(gw port.Gateway, seen *[]domain.GatewayCredentials) port.GatewayResolver {
	var mu sync.Mutex
	return func(creds domain.GatewayCredentials) port.Gateway {
		if seen != nil {
			mu.Lock()
			*seen = append(*seen, creds)
			mu.Unlock()
		}
		return gw
	}
}

type connFixture struct {
	conns     *memConnections
	companies *memCompanies
	gw        *fakeGateway
	notifier  *recNotifier
	svc       *service.ConnectionService
	infoCache *cache.InMemory[*domain.InstanceInfo]
}

func newConnFixture(conns ...domain.Connection) *connFixture {
	f := &connFixture{
		conns:     newMemConnections(conns...),
		companies: newMemCompanies(activeCompany()),
		gw:        &fakeGateway{},
		notifier:  &recNotifier{},
		infoCache: cache.New[*domain.InstanceInfo](time.Minute),
	}
	f.svc = service.NewConnectionService(
		f.conns,
		f.companies,
		resolverFor(f.gw, nil),
		f.infoCache,
		f.notifier,
		observability.NewMetrics(),
		zap.NewNop(),
	)
	return f
}

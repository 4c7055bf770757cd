package evolution_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/evolution"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/wa-groups-bfa-go/internal/port"
	"go.uber.org/zap"
)

var _ port.Gateway = (*evolution.Client)(nil)

func newTestClient(t *testing.T, h http.HandlerFunc) *evolution.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return evolution.New(
		&http.Client{Timeout: 2 * time.Second},
		srv.URL,
		"secret-key",
		"WHATSAPP-BAILEYS",
		resilience.Config{MaxRetries: 0},
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func TestCreateInstance_SendsBodyAndKey(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/instance/create" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "secret-key" {
			t.Errorf("missing apikey header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"instance":{"instanceName":"acme-1","status":"created"}}`))
	})

	if err := c.CreateInstance(context.Background(), "acme-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["instanceName"] != "acme-1" || got["qrcode"] != true || got["integration"] != "WHATSAPP-BAILEYS" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestCreateInstance_NotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.CreateInstance(context.Background(), "acme-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestConnectInstance_QRCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance/connect/acme-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"pairingCode":"WZYEH1YY","code":"2@y8eK+bjtEjUWy9","base64":"data:image/png;base64,iVBORw0","count":1}`))
	})

	res, err := c.ConnectInstance(context.Background(), "acme-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.HasQRCode() || res.IsOpen() {
		t.Fatalf("expected qr result, got %+v", res)
	}
	if res.PairingCode != "WZYEH1YY" || res.State != domain.InstanceConnecting {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestConnectInstance_AlreadyOpen(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instance":{"instanceName":"acme-1","state":"open"}}`))
	})

	res, err := c.ConnectInstance(context.Background(), "acme-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsOpen() || res.HasQRCode() {
		t.Errorf("expected open without qr, got %+v", res)
	}
}

func TestGetInstanceInfo_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"v2 flat", `[{"name":"acme-1","connectionStatus":"open","ownerJid":"5511999990000@s.whatsapp.net","profileName":"Acme"}]`},
		{"v1 nested", `[{"instance":{"instanceName":"acme-1","status":"open","owner":"5511999990000:3@s.whatsapp.net","profileName":"Acme"}}]`},
		{"single object", `{"name":"acme-1","connectionStatus":"open","ownerJid":"5511999990000@s.whatsapp.net","profileName":"Acme"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("instanceName") != "acme-1" {
					t.Errorf("missing instanceName filter")
				}
				_, _ = w.Write([]byte(tt.body))
			})

			info, err := c.GetInstanceInfo(context.Background(), "acme-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.State != domain.InstanceOpen || info.Number != "5511999990000" || info.ProfileName != "Acme" {
				t.Errorf("unexpected info: %+v", info)
			}
		})
	}
}

func TestGetInstanceInfo_Unknown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.GetInstanceInfo(context.Background(), "ghost")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Status != http.StatusNotFound {
		t.Fatalf("expected external 404, got %v", err)
	}
}

func TestNon2xx_IsExternalServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"instance name already in use"}`))
	})

	err := c.DisconnectInstance(context.Background(), "acme-1")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %T", err)
	}
	if ext.Status != http.StatusForbidden || ext.Service != "evolution/logout_instance" {
		t.Errorf("unexpected error: %+v", ext)
	}
}

func TestUndecodableBody_IsExternalServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.FetchGroups(context.Background(), "acme-1")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestUnreachableGateway(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := evolution.New(&http.Client{Timeout: time.Second}, srv.URL, "k", "", resilience.Config{}, nil, zap.NewNop())
	_, err := c.ConnectInstance(context.Background(), "acme-1")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Status != 0 {
		t.Fatalf("expected transport ErrExternalService, got %v", err)
	}
}

func TestGroupsAndParticipants(t *testing.T) {
	var updateBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/group/fetchAllGroups/acme-1":
			_, _ = w.Write([]byte(`[{"id":"1203@g.us","subject":"Vendas","desc":"time","size":12}]`))
		case "/group/create/acme-1":
			_, _ = w.Write([]byte(`{"id":"9999@g.us","subject":"Novo"}`))
		case "/group/participants/acme-1":
			if r.URL.Query().Get("groupJid") != "1203@g.us" {
				t.Errorf("unexpected jid %q", r.URL.Query().Get("groupJid"))
			}
			_, _ = w.Write([]byte(`{"participants":[{"id":"5511@s.whatsapp.net","admin":"superadmin"},{"id":"5522@s.whatsapp.net","admin":null}]}`))
		case "/group/updateParticipant/acme-1":
			_ = json.NewDecoder(r.Body).Decode(&updateBody)
			_, _ = w.Write([]byte(`{"updateParticipants":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	groups, err := c.FetchGroups(ctx, "acme-1")
	if err != nil || len(groups) != 1 || groups[0].JID != "1203@g.us" || groups[0].Size != 12 {
		t.Fatalf("unexpected groups %+v, %v", groups, err)
	}

	g, err := c.CreateGroup(ctx, "acme-1", "Novo", "", []string{"5511999990000"})
	if err != nil || g.JID != "9999@g.us" {
		t.Fatalf("unexpected group %+v, %v", g, err)
	}

	parts, err := c.FetchParticipants(ctx, "acme-1", "1203@g.us")
	if err != nil || len(parts) != 2 || parts[0].Admin != "superadmin" || parts[1].Admin != "" {
		t.Fatalf("unexpected participants %+v, %v", parts, err)
	}

	if err := c.UpdateParticipants(ctx, "acme-1", "1203@g.us", domain.ParticipantPromote, []string{"5522"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updateBody["action"] != "promote" {
		t.Errorf("unexpected update body: %v", updateBody)
	}
}

func TestSendText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["number"] != "1203@g.us" || body["text"] != "oi" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":{"remoteJid":"1203@g.us","fromMe":true,"id":"BAE5"},"status":"PENDING"}`))
	})

	res, err := c.SendText(context.Background(), "acme-1", "1203@g.us", "oi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MessageID != "BAE5" || res.Status != "PENDING" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestWithCredentials(t *testing.T) {
	var seenKey string
	override := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.Header.Get("apikey")
	}))
	defer override.Close()

	base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("default gateway must not be called")
	})

	c := base.WithCredentials(override.URL+"/", "tenant-key")
	if err := c.DeleteInstance(context.Background(), "acme-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenKey != "tenant-key" {
		t.Errorf("expected tenant key, got %q", seenKey)
	}

	keep := base.WithCredentials("", "")
	if keep.BaseURL() != base.BaseURL() {
		t.Errorf("empty override must keep base url")
	}
}

func TestConcurrentCallsCapped(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	base := evolution.New(
		&http.Client{Timeout: 2 * time.Second},
		srv.URL,
		"secret-key",
		"WHATSAPP-BAILEYS",
		resilience.Config{MaxConcurrency: 2},
		observability.NewMetrics(),
		zap.NewNop(),
	)
	tenant := base.WithCredentials("", "tenant-key")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := base
		if i%2 == 1 {
			c = tenant
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.DeleteInstance(context.Background(), "acme-1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 calls in flight, saw %d", got)
	}
}

func TestConcurrencyCap_WaitRespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := evolution.New(&http.Client{Timeout: 2 * time.Second}, srv.URL, "k", "WHATSAPP-BAILEYS",
		resilience.Config{MaxConcurrency: 1}, observability.NewMetrics(), zap.NewNop())

	go func() { _ = c.DeleteInstance(context.Background(), "busy") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.DeleteInstance(ctx, "acme-1")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected a wrapped deadline error, got %v", err)
	}
}

func TestJIDToNumber(t *testing.T) {
	cases := map[string]string{
		"5511999990000@s.whatsapp.net":    "5511999990000",
		"5511999990000:12@s.whatsapp.net": "5511999990000",
		"5511999990000":                   "5511999990000",
		"":                                "",
	}
	for in, want := range cases {
		if got := evolution.JIDToNumber(in); got != want {
			t.Errorf("JIDToNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

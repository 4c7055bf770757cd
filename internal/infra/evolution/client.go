// Package evolution is the HTTP client for the Evolution API, the gateway
// that owns the WhatsApp sessions. It is stateless apart from the circuit
// breakers it keeps per gateway host.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/observability"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("evolution")

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 512

// Client calls one Evolution API deployment.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	integration string
	cfg         resilience.Config
	metrics     *observability.Metrics
	breakers    *breakerSet
	bulkhead    *resilience.Bulkhead
}

// New creates a client bound to the default gateway credentials.
// cfg.MaxRetries should stay 0: instance creation and connect are not
// idempotent on the gateway side. cfg.MaxConcurrency caps in-flight calls
// across every deployment reached through this client; 0 means no cap.
func New(httpClient *http.Client, baseURL, apiKey, integration string, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Client {
	var bulkhead *resilience.Bulkhead
	if cfg.MaxConcurrency > 0 {
		bulkhead = resilience.NewBulkhead(cfg.MaxConcurrency)
	}
	return &Client{
		bulkhead:    bulkhead,
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		integration: integration,
		cfg:         cfg,
		metrics:     metrics,
		breakers:    &breakerSet{m: make(map[string]*gobreaker.CircuitBreaker), logger: logger},
	}
}

// WithCredentials returns a client for another gateway deployment. Empty
// values keep the receiver's. Clients for the same host share one breaker,
// and all of them share the receiver's concurrency cap.
func (c *Client) WithCredentials(baseURL, apiKey string) *Client {
	cp := *c
	if baseURL != "" {
		cp.baseURL = strings.TrimRight(baseURL, "/")
	}
	if apiKey != "" {
		cp.apiKey = apiKey
	}
	return &cp
}

// BaseURL returns the gateway this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type breakerSet struct {
	mu     sync.Mutex
	m      map[string]*gobreaker.CircuitBreaker
	logger *zap.Logger
}

func (b *breakerSet) get(baseURL string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.m[baseURL]
	if !ok {
		cb = resilience.NewCircuitBreaker("evolution "+baseURL, b.logger)
		b.m[baseURL] = cb
	}
	return cb
}

// do sends one JSON request and decodes a 2xx answer into out (when not nil).
// Every failure comes back as *domain.ErrExternalService.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	service := "evolution/" + op

	if c.bulkhead != nil {
		if err := c.bulkhead.Acquire(ctx); err != nil {
			return &domain.ErrExternalService{Service: service, Err: err}
		}
		defer c.bulkhead.Release()
	}

	_, err := resilience.Execute(c.breakers.get(c.baseURL), func() (struct{}, error) {
		return struct{}{}, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.roundTrip(ctx, service, method, path, body, out)
		})
	})

	if c.metrics != nil {
		c.metrics.RecordGatewayCall(op, err)
	}
	if err == nil {
		return nil
	}

	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		return err
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

func (c *Client) roundTrip(ctx context.Context, service, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &domain.ErrExternalService{Service: service, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.ErrExternalService{Service: service, Err: err}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ErrExternalService{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ErrExternalService{
			Service: service,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ErrExternalService{
			Service: service,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// JIDToNumber strips the WhatsApp domain and device suffix from a JID.
// "5511999990000:12@s.whatsapp.net" -> "5511999990000".
func JIDToNumber(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

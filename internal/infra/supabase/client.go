// Package supabase provides a client for Supabase (PostgREST).
// It is the persistence backend for every table of the dashboard.
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// get runs a read through the circuit breaker with retries.
// Reads are idempotent, so they are the only calls that get replayed.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, err := resilience.Execute(c.cb, func() ([]byte, error) {
		var out []byte
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var innerErr error
			out, innerErr = c.doRequest(ctx, http.MethodGet, path)
			return innerErr
		})
		return out, err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return body, nil
}

// doRequest executes an authenticated request to Supabase PostgREST.
// 404 and 204 come back as a nil body.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &domain.ErrExternalService{
			Service: "supabase",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("supabase returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// doCount asks PostgREST for an exact row count without fetching rows.
// The total is the part after the slash in Content-Range ("0-24/3573", "*/0").
func (c *Client) doCount(ctx context.Context, path string) (int, error) {
	n, err := resilience.Execute(c.cb, func() (int, error) {
		var n int
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := c.newRequest(ctx, http.MethodHead, path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Prefer", "count=exact")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return &domain.ErrExternalService{Service: "supabase", Err: err}
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &domain.ErrExternalService{
					Service: "supabase",
					Status:  resp.StatusCode,
					Err:     fmt.Errorf("supabase count returned status %d", resp.StatusCode),
				}
			}

			n, err = parseContentRange(resp.Header.Get("Content-Range"))
			return err
		})
		return n, err
	})
	return n, wrapErr(err)
}

func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("invalid content-range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range without total: %q", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("invalid content-range %q: %w", v, err)
	}
	return n, nil
}

// Ping checks that PostgREST answers. Used by /readyz.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("supabase returned status %d", resp.StatusCode)
	}
	return nil
}

func wrapErr(err error) error {
	if _, ok := err.(*domain.ErrExternalService); ok {
		return err
	}
	if _, ok := err.(*domain.ErrCircuitOpen); ok {
		return &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	return err
}

// eq builds a PostgREST equality filter with an escaped value.
func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}

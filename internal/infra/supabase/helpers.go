package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	return c.post(ctx, table, data, "return=representation")
}

// doUpsert inserts or merges on the given unique column.
func (c *Client) doUpsert(ctx context.Context, table, onConflict string, data map[string]any) ([]byte, error) {
	return c.post(ctx, table+"?on_conflict="+onConflict, data, "resolution=merge-duplicates,return=representation")
}

func (c *Client) post(ctx context.Context, path string, data map[string]any, prefer string) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, &domain.ErrConflict{Message: "registro já existe"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &domain.ErrExternalService{
			Service: "supabase",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("supabase POST %s returned %d: %s", path, resp.StatusCode, string(body)),
		}
	}

	c.logger.Debug("supabase: POST OK", zap.String("path", path), zap.Int("status", resp.StatusCode))
	return body, nil
}

func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) error {
	_, err := c.patch(ctx, path, data, "return=minimal")
	return err
}

// doPatchReturning patches and returns the updated rows, so callers can
// tell whether the filter matched anything.
func (c *Client) doPatchReturning(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	return c.patch(ctx, path, data, "return=representation")
}

func (c *Client) patch(ctx context.Context, path string, data map[string]any, prefer string) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: PATCH request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: PATCH non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &domain.ErrExternalService{
			Service: "supabase",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("supabase PATCH returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	c.logger.Debug("supabase: PATCH OK", zap.String("path", path))
	return body, nil
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: DELETE request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		c.logger.Warn("supabase: DELETE non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &domain.ErrExternalService{
			Service: "supabase",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("supabase DELETE returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	c.logger.Debug("supabase: DELETE OK", zap.String("path", path))
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================
// Decoding helpers
// ============================================================

func decodeRows[T any](body []byte, table string) ([]T, error) {
	rows := []T{}
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}

// decodeFirst returns the first row, or nil when there is none.
func decodeFirst[T any](body []byte, table string) (*T, error) {
	rows, err := decodeRows[T](body, table)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// insertOne posts a row and returns its representation.
func insertOne[T any](ctx context.Context, c *Client, table string, row map[string]any) (*T, error) {
	body, err := c.doPost(ctx, table, row)
	if err != nil {
		return nil, err
	}
	created, err := decodeFirst[T](body, table)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("no result from %s insert", table)
	}
	return created, nil
}

func withUpdatedAt(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}
	out["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	return out
}

// page converts 1-based page/pageSize into PostgREST limit/offset.
func page(p, size int) string {
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if p < 1 {
		p = 1
	}
	return fmt.Sprintf("&limit=%d&offset=%d", size, (p-1)*size)
}

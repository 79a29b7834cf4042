// Package client talks to a running recall server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/server"
)

const httpTimeout = 5 * time.Minute

// Client talks to the recall server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for baseURL. RECALL_URL overrides it when set.
func New(baseURL string) *Client {
	if env := os.Getenv("RECALL_URL"); env != "" {
		baseURL = env
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(baseURL, "/"),
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method, Path string
	Status       int
	Message      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Unwrap maps 409 from the lifecycle route to engine.ErrRunInProgress.
func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusConflict {
		return engine.ErrRunInProgress
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// Query runs a retrieval on the server.
func (c *Client) Query(ctx context.Context, req server.QueryRequest) (*engine.Result, error) {
	var res engine.Result
	if err := c.do(ctx, http.MethodPost, "/api/query", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Answer asks the server for a grounded answer.
func (c *Client) Answer(ctx context.Context, req server.QueryRequest) (*server.AnswerResponse, error) {
	var res server.AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/api/answer", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunLifecycle triggers a lifecycle pass. daysOld <= 0 uses the server's
// configured cutoff.
func (c *Client) RunLifecycle(ctx context.Context, daysOld int) (*server.LifecycleResponse, error) {
	var res server.LifecycleResponse
	err := c.do(ctx, http.MethodPost, "/api/lifecycle/run", server.LifecycleRequest{DaysOld: daysOld}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Boost returns the retention boost of id.
func (c *Client) Boost(ctx context.Context, id string) (float64, error) {
	var res struct {
		Boost float64 `json:"boost"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/boosts/"+url.PathEscape(id), nil, &res); err != nil {
		return 0, err
	}
	return res.Boost, nil
}

// Ingest sends records to the server.
func (c *Client) Ingest(ctx context.Context, records []memory.Record) (*server.IngestResponse, error) {
	var res server.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/records", records, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trademate/api/internal/platform/config"
)

const (
	reservePath = "/products/sale/reserve"
	releasePath = "/products/sale/release"

	maxErrorBody = 4 << 10
)

// Operation names the stock call that failed.
type Operation string

const (
	OperationReserve Operation = "reserve"
	OperationRelease Operation = "release"
)

// StockLine identifies a quantity of one product variant held as sale stock.
type StockLine struct {
	UniqueID  string `json:"unique_id"`
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

// StockError reports a failed reservation or release. StatusCode is zero when the request never
// produced a response.
type StockError struct {
	Op         Operation
	Line       StockLine
	StatusCode int
	Body       string
	Err        error
}

// ReleaseError is the StockError returned from Release.
type ReleaseError = StockError

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	target := e.Line.UniqueID
	if e.Line.VariantID != "" {
		target += "/" + e.Line.VariantID
	}
	if e.Err != nil {
		return fmt.Sprintf("catalog: %s %s x%d: %v", e.Op, target, e.Line.Qty, e.Err)
	}
	return fmt.Sprintf("catalog: %s %s x%d: status %d", e.Op, target, e.Line.Qty, e.StatusCode)
}

func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Client calls the external catalog's sale stock endpoints. Each call is a single synchronous
// request with no retry.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient builds a catalog client from the stock configuration.
func NewClient(cfg config.StockConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("catalog: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Reserve holds line.Qty units of sale stock.
func (c *Client) Reserve(ctx context.Context, line StockLine) error {
	return c.post(ctx, OperationReserve, reservePath, line)
}

// Release returns line.Qty units of sale stock.
func (c *Client) Release(ctx context.Context, line StockLine) error {
	return c.post(ctx, OperationRelease, releasePath, line)
}

func (c *Client) post(ctx context.Context, op Operation, path string, line StockLine) error {
	payload, err := json.Marshal(line)
	if err != nil {
		return &StockError{Op: op, Line: line, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &StockError{Op: op, Line: line, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &StockError{Op: op, Line: line, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StockError{Op: op, Line: line, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Package router talks to the HTTP inference backend. Requests are routed to
// one of three endpoints by mode: OCR, segmentation, or the general
// mixture-of-experts router.
package router

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

	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/types"
)

// ErrEndpointNotConfigured is returned when the endpoint for a mode is empty.
var ErrEndpointNotConfigured = errors.New("endpoint not configured")

// ErrInvalidBody is returned by Forward for a body that is not a JSON object.
var ErrInvalidBody = errors.New("invalid request body")

// EndpointError names the adapter whose endpoint is missing.
type EndpointError struct {
	Adapter string
}

func (e *EndpointError) Error() string {
	return "endpoint not configured for adapter: " + e.Adapter
}

func (e *EndpointError) Unwrap() error { return ErrEndpointNotConfigured }

// Endpoints are the backend URLs per mode.
type Endpoints struct {
	MoE string `json:"moe" yaml:"moe" mapstructure:"moe"`
	OCR string `json:"ocr" yaml:"ocr" mapstructure:"ocr"`
	SAM string `json:"sam" yaml:"sam" mapstructure:"sam"`
}

// For returns the URL and adapter name for mode.
func (e Endpoints) For(mode types.Mode) (string, string) {
	switch mode {
	case types.ModeOCR:
		return e.OCR, string(types.ModeOCR)
	case types.ModeSegment:
		return e.SAM, string(types.ModeSegment)
	}
	return e.MoE, "moe"
}

// forAdapter selects by the raw adapter field of a request body.
func (e Endpoints) forAdapter(adapter string) (string, string) {
	switch adapter {
	case string(types.ModeOCR):
		return e.OCR, adapter
	case string(types.ModeSegment):
		return e.SAM, adapter
	}
	if adapter == "" {
		return e.MoE, "moe"
	}
	return e.MoE, adapter
}

// Config holds endpoint URLs and status probe timing.
type Config struct {
	Endpoints Endpoints
	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration
	// WarmupTimeout bounds the cold-start warmup request.
	WarmupTimeout time.Duration
	// WarmLatency is the probe latency under which the backend counts as warm.
	WarmLatency time.Duration
	// ColdStartLatency is the warmup latency above which the backend was asleep.
	ColdStartLatency time.Duration
}

// DefaultConfig returns the probe timing the console has always used.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:     5 * time.Second,
		WarmupTimeout:    120 * time.Second,
		WarmLatency:      500 * time.Millisecond,
		ColdStartLatency: 5 * time.Second,
	}
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Client is an HTTP JSON inference client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client. Inference requests carry no client-side
// timeout; the caller's context is the only bound.
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = def.ProbeTimeout
	}
	if config.WarmupTimeout <= 0 {
		config.WarmupTimeout = def.WarmupTimeout
	}
	if config.WarmLatency <= 0 {
		config.WarmLatency = def.WarmLatency
	}
	if config.ColdStartLatency <= 0 {
		config.ColdStartLatency = def.ColdStartLatency
	}
	config.Endpoints.MoE = strings.TrimSuffix(config.Endpoints.MoE, "/")
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Endpoints returns the configured endpoints.
func (c *Client) Endpoints() Endpoints { return c.config.Endpoints }

// Validate fails when no endpoint is configured for mode.
func (c *Client) Validate(mode types.Mode) error {
	if url, name := c.config.Endpoints.For(mode); url == "" {
		return &EndpointError{Adapter: name}
	}
	return nil
}

// Infer posts req to the endpoint for its mode and parses the JSON object
// it returns.
func (c *Client) Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error) {
	endpoint, name := c.config.Endpoints.For(req.Mode())
	if endpoint == "" {
		return nil, &EndpointError{Adapter: name}
	}

	start := time.Now()
	body, err := c.sendRequest(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("inference response",
		zap.String("adapter", name),
		zap.Duration("latency", time.Since(start)),
		zap.Int("bytes", len(body)))

	res, err := types.ParseResult(body)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Forward relays a raw request body to the endpoint picked by its adapter
// field and returns the upstream status and body unchanged.
func (c *Client) Forward(ctx context.Context, body []byte) (int, []byte, error) {
	var probe struct {
		Adapter string `json:"adapter"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	endpoint, name := c.config.Endpoints.forAdapter(probe.Adapter)
	if endpoint == "" {
		return 0, nil, &EndpointError{Adapter: name}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, out, nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: errorText(body)}
	}

	return body, nil
}

// errorText prefers the backend's own error field over the raw body.
func errorText(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Package ollama runs region inference against a local Ollama server. It
// serves auto and expert modes; OCR and segmentation need the HTTP backend.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/types"
)

// AdapterName is reported as the adapter of every result.
const AdapterName = "ollama"

// ErrUnsupportedMode is returned for modes the chat API cannot serve.
var ErrUnsupportedMode = errors.New("mode not supported by ollama backend")

// Config selects the server and models.
type Config struct {
	URL   string
	Model string
	// ExpertModels maps an expert id to a fine-tuned model. Experts without
	// an entry use Model.
	ExpertModels map[int]string
}

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	config Config
	logger *zap.Logger
}

// NewClient creates a new Ollama client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Model == "" {
		return nil, errors.New("ollama model is required")
	}

	parsedURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", config.URL)
	}

	// Drop any path such as /api/chat; the SDK adds its own.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		config: config,
		logger: logger,
	}, nil
}

// Validate rejects modes that need a dedicated backend.
func (c *Client) Validate(mode types.Mode) error {
	switch mode {
	case types.ModeOCR, types.ModeSegment:
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return nil
}

// Infer sends the region image and prompt as a single chat turn.
func (c *Client) Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error) {
	if err := c.Validate(req.Mode()); err != nil {
		return nil, err
	}

	_, imgBytes, err := processing.DecodeDataURL(req.ImageB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	model := c.modelFor(req.Expert)
	streamFalse := false
	chatReq := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: req.Prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: modelOptions(model),
	}

	var last api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	c.logger.Debug("ollama response",
		zap.String("model", model),
		zap.Duration("total", last.TotalDuration),
		zap.Int("tool_calls", len(last.Message.ToolCalls)))

	return buildResult(last, req.Expert)
}

func (c *Client) modelFor(expert *int) string {
	if expert != nil {
		if m, ok := c.config.ExpertModels[*expert]; ok && m != "" {
			return m
		}
	}
	return c.config.Model
}

// modelOptions tunes sampling for known vision models.
func modelOptions(model string) map[string]any {
	options := map[string]any{}
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["temperature"] = 0.7
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}
	return options
}

// buildResult shapes a chat response like a router response so the rest of
// the console treats both backends alike.
func buildResult(resp api.ChatResponse, expert *int) (*types.InferenceResult, error) {
	body := map[string]any{
		"output":  renderOutput(resp.Message),
		"adapter": AdapterName,
		"routed":  false,
		"timings": map[string]float64{
			"load":   resp.LoadDuration.Seconds(),
			"prompt": resp.PromptEvalDuration.Seconds(),
			"eval":   resp.EvalDuration.Seconds(),
			"total":  resp.TotalDuration.Seconds(),
		},
	}
	if expert != nil {
		body["expert"] = *expert
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return types.ParseResult(raw)
}

// renderOutput appends native tool calls as <tool_call> blocks, the format
// the console extracts actions from.
func renderOutput(msg api.Message) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(msg.Content))
	for _, tc := range msg.ToolCalls {
		call := types.ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		data, err := json.Marshal(call)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("<tool_call>")
		sb.Write(data)
		sb.WriteString("</tool_call>")
	}
	return sb.String()
}

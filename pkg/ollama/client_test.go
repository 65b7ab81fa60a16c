package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/region-console/pkg/toolcall"
	"github.com/menta2k/region-console/pkg/types"
)

func newTestServer(t *testing.T, gotModel *string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad chat request: %v", err)
		}
		*gotModel = req.Model
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("Expected one message with one image, got %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"` + req.Model + `","message":{"role":"assistant","content":"clicking",` +
			`"tool_calls":[{"function":{"name":"click","arguments":{"coordinate":[120,340]}}}]},` +
			`"done":true,"total_duration":1500000000,"eval_duration":500000000}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{URL: "http://localhost:11434"}, nil); err == nil {
		t.Error("Expected error without model")
	}
	if _, err := NewClient(Config{URL: "localhost", Model: "m"}, nil); err == nil {
		t.Error("Expected error for URL without scheme")
	}
	if _, err := NewClient(Config{URL: "http://localhost:11434/api/chat", Model: "m"}, nil); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidateModes(t *testing.T) {
	c, err := NewClient(Config{URL: "http://localhost:11434", Model: "m"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(types.ModeAuto); err != nil {
		t.Errorf("auto should be supported: %v", err)
	}
	if err := c.Validate(types.ModeExpert); err != nil {
		t.Errorf("expert should be supported: %v", err)
	}
	if err := c.Validate(types.ModeSegment); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("Expected ErrUnsupportedMode, got %v", err)
	}
}

func TestInfer(t *testing.T) {
	var model string
	srv := newTestServer(t, &model)
	c, err := NewClient(Config{URL: srv.URL, Model: "base-vl", ExpertModels: map[int]string{3: "calendar-vl"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	expert := 3
	res, err := c.Infer(context.Background(), types.InferenceRequest{
		ImageB64: "data:image/png;base64,iVBORw0KGgo=",
		Prompt:   "click save",
		Expert:   &expert,
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if model != "calendar-vl" {
		t.Errorf("Expected expert model, got %s", model)
	}
	if res.Adapter == nil || *res.Adapter != AdapterName {
		t.Errorf("Expected adapter %s", AdapterName)
	}
	if res.Expert == nil || *res.Expert != 3 {
		t.Error("Expected expert 3 in result")
	}
	if res.Timings["total"] != 1.5 || res.Timings["eval"] != 0.5 {
		t.Errorf("unexpected timings %v", res.Timings)
	}

	tc, ok := toolcall.Extract(res.DisplayText())
	if !ok || tc.Name != "click" {
		t.Fatalf("Expected click tool call in output %q", res.DisplayText())
	}
	if p, ok := toolcall.Coordinate(tc.Arguments); !ok || p != (types.Point{X: 120, Y: 340}) {
		t.Errorf("unexpected coordinate %v", p)
	}
	if !strings.HasPrefix(res.DisplayText(), "clicking") {
		t.Error("message content should lead the output")
	}

	if _, err := c.Infer(context.Background(), types.InferenceRequest{ImageB64: "data:image/png;base64,AA==", Prompt: "x"}); err != nil {
		t.Fatal(err)
	}
	if model != "base-vl" {
		t.Errorf("Expected default model, got %s", model)
	}
}

func TestInferRejectsBadImage(t *testing.T) {
	c, _ := NewClient(Config{URL: "http://127.0.0.1:1", Model: "m"}, nil)
	if _, err := c.Infer(context.Background(), types.InferenceRequest{ImageB64: "data:image/png;base64,***"}); err == nil {
		t.Error("Expected error for undecodable image")
	}
}

func TestModelOptions(t *testing.T) {
	if opts := modelOptions("openbmb/MiniCPM-V-4.5"); opts["num_ctx"] != 4096 {
		t.Errorf("Expected tuned options, got %v", opts)
	}
	if opts := modelOptions("qwen2.5vl"); len(opts) != 0 {
		t.Errorf("Expected no options, got %v", opts)
	}
}

func TestRenderOutputWithoutToolCalls(t *testing.T) {
	if got := renderOutput(api.Message{Content: "  plain answer \n"}); got != "plain answer" {
		t.Errorf("got %q", got)
	}
}

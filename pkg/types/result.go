package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotObject is returned when a backend body is valid JSON but not an object.
var ErrNotObject = errors.New("inference result is not a JSON object")

// InferenceResult is the backend's answer. The body is an open JSON object;
// the known members are decoded individually and are nil when absent or of
// an unexpected type. Raw keeps the full body for display.
type InferenceResult struct {
	Output  *string
	Text    *string
	Adapter *string
	Expert  *int
	Routed  *bool
	Timings map[string]float64
	Error   *string
	// Boxes are segmentation detections as [x1,y1,x2,y2] pixels in the sent image.
	Boxes  [][]float64
	Scores []float64
	Raw    json.RawMessage
}

// ParseResult validates body as a JSON object and decodes the known members.
func ParseResult(body []byte) (*InferenceResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse inference result: %w", err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	res := &InferenceResult{Raw: append(json.RawMessage(nil), body...)}
	res.Output = decodeField[string](fields, "output")
	res.Text = decodeField[string](fields, "text")
	res.Adapter = decodeField[string](fields, "adapter")
	res.Expert = decodeField[int](fields, "expert")
	res.Routed = decodeField[bool](fields, "routed")
	res.Error = decodeField[string](fields, "error")
	if t := decodeField[map[string]float64](fields, "timings"); t != nil {
		res.Timings = *t
	}
	if b := decodeField[[][]float64](fields, "boxes"); b != nil {
		res.Boxes = *b
	}
	if s := decodeField[[]float64](fields, "scores"); s != nil {
		res.Scores = *s
	}
	return res, nil
}

// decodeField returns nil for missing, null, or mistyped members.
func decodeField[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// ErrorMessage returns the backend-reported error, if any.
func (r *InferenceResult) ErrorMessage() (string, bool) {
	if r == nil || r.Error == nil || *r.Error == "" {
		return "", false
	}
	return *r.Error, true
}

// DisplayText is the text to show when no tool call is present:
// output for routed responses, text for OCR responses.
func (r *InferenceResult) DisplayText() string {
	if r == nil {
		return ""
	}
	if r.Output != nil {
		return *r.Output
	}
	if r.Text != nil {
		return *r.Text
	}
	return ""
}

// Timing is one named duration.
type Timing struct {
	Name    string
	Seconds float64
}

// SortedTimings returns the timings ordered by name.
func (r *InferenceResult) SortedTimings() []Timing {
	if r == nil {
		return nil
	}
	out := make([]Timing, 0, len(r.Timings))
	for k, v := range r.Timings {
		out = append(out, Timing{Name: k, Seconds: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Milliseconds formats a timing the way the console displays it.
func (t Timing) Milliseconds() string {
	return fmt.Sprintf("%.1fms", t.Seconds*1000)
}

// MarshalJSON emits the backend body with its fields and key order as
// received. Callers going through encoding/json get it compacted.
func (r InferenceResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("{}"), nil
	}
	return r.Raw, nil
}

// ToolCall is a structured action embedded in the backend's output.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/menta2k/region-console/pkg/cache"
	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/router"
	"github.com/menta2k/region-console/pkg/types"
)

// fakeClient answers from a script keyed by call order.
type fakeClient struct {
	mu        sync.Mutex
	requests  []types.InferenceRequest
	answers   []string
	failAt    int
	validErr  error
	beforeRet func(call int)
}

func (f *fakeClient) Validate(types.Mode) error { return f.validErr }

func (f *fakeClient) Infer(_ context.Context, req types.InferenceRequest) (*types.InferenceResult, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.beforeRet != nil {
		f.beforeRet(call)
	}
	if call == f.failAt {
		return nil, &router.StatusError{Code: 502, Body: "bad gateway"}
	}
	body := `{"output":"ok"}`
	if call < len(f.answers) {
		body = f.answers[call]
	}
	return types.ParseResult([]byte(body))
}

func createTestSource(t *testing.T, width, height int) *processing.Source {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	src, err := processing.NewProcessor().SourceFromBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func boxPtr(x1, y1, x2, y2 int) *types.BoundingBox {
	b := types.Box(x1, y1, x2, y2)
	return &b
}

func TestScenarioPartialFailure(t *testing.T) {
	src := createTestSource(t, 200, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))
	set.SetBox(1, boxPtr(500, 500, 1000, 1000))

	fc := &fakeClient{failAt: 1}
	out := New(fc, nil, nil).Run(context.Background(), src, set, Params{Prompt: "click ok"})

	if out.Err == nil {
		t.Fatal("Expected run error")
	}
	var statusErr *router.StatusError
	if !errors.As(out.Err, &statusErr) {
		t.Errorf("Expected StatusError, got %v", out.Err)
	}
	if !out.Populated {
		t.Error("region 0 result should keep the run populated")
	}
	r0, _ := set.Region(0)
	if r0.Response == nil || r0.Response.DisplayText() != "ok" {
		t.Error("region 0 response should be retained")
	}
	if r0.SentDimensions == nil || *r0.SentDimensions != (types.Size{Width: 100, Height: 50}) {
		t.Errorf("unexpected sent dimensions %v", r0.SentDimensions)
	}
	r1, _ := set.Region(1)
	if r1.Response != nil {
		t.Error("failed region should have no response")
	}
	if len(out.Regions) != 2 || out.Regions[1].Err == nil {
		t.Errorf("unexpected region outcomes %+v", out.Regions)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	src := createTestSource(t, 100, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))
	set.SetBox(1, boxPtr(0, 0, 600, 600))
	set.SetBox(2, boxPtr(0, 0, 700, 700))

	fc := &fakeClient{failAt: 0}
	out := New(fc, nil, nil).Run(context.Background(), src, set, Params{})
	if len(fc.requests) != 1 {
		t.Errorf("Expected the run to stop after the first failure, got %d requests", len(fc.requests))
	}
	if out.Populated {
		t.Error("nothing should be populated")
	}
	if fc.requests[0].Prompt != DefaultPrompt {
		t.Errorf("Expected default prompt, got %q", fc.requests[0].Prompt)
	}
}

func TestBackendErrorFieldDoesNotStop(t *testing.T) {
	src := createTestSource(t, 100, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))
	set.SetBox(2, boxPtr(500, 500, 1000, 1000))

	fc := &fakeClient{failAt: -1, answers: []string{`{"output":"","error":"adapter crashed"}`, `{"output":"fine"}`}}
	out := New(fc, nil, nil).Run(context.Background(), src, set, Params{Prompt: "p"})

	if out.ErrorMessage() != "adapter crashed" {
		t.Errorf("Expected backend error message, got %q", out.ErrorMessage())
	}
	var be *BackendError
	if !errors.As(out.Err, &be) || be.Region != 0 {
		t.Errorf("Expected BackendError for region 0, got %v", out.Err)
	}
	r0, _ := set.Region(0)
	r2, _ := set.Region(2)
	if r0.Response == nil || r2.Response == nil {
		t.Error("both results should be stored")
	}
}

func TestConfigurationErrorCreatesNoState(t *testing.T) {
	src := createTestSource(t, 100, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))
	gen := set.Generation()

	fc := &fakeClient{failAt: -1, validErr: &router.EndpointError{Adapter: "ocr"}}
	out := New(fc, nil, nil).Run(context.Background(), src, set, Params{Mode: types.ModeOCR})

	if !errors.Is(out.Err, router.ErrEndpointNotConfigured) {
		t.Errorf("Expected configuration error, got %v", out.Err)
	}
	if len(fc.requests) != 0 {
		t.Error("no request should be sent")
	}
	if set.Generation() != gen || out.Populated || len(out.Regions) != 0 {
		t.Error("a rejected run must not touch the Region Set")
	}
}

func TestWholeImageFallback(t *testing.T) {
	src := createTestSource(t, 80, 60)
	set := regions.NewSet()

	fc := &fakeClient{failAt: -1}
	out := New(fc, nil, nil).Run(context.Background(), src, set, Params{Mode: types.ModeOCR})
	if out.Err != nil {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if len(fc.requests) != 1 || fc.requests[0].ImageB64 != src.Payload {
		t.Error("Expected the original payload to be sent once")
	}
	if fc.requests[0].Adapter != "ocr" {
		t.Errorf("Expected ocr adapter, got %q", fc.requests[0].Adapter)
	}
	r0, _ := set.Region(0)
	if r0.Response == nil || *r0.SentDimensions != (types.Size{Width: 80, Height: 60}) {
		t.Error("whole-image result should land in region 0 with full dimensions")
	}
}

func TestRequestModes(t *testing.T) {
	expert := 4
	p := Params{Prompt: "x", Mode: types.ModeExpert, Expert: &expert}
	req := p.request("img", nil)
	if req.Expert == nil || *req.Expert != 4 || req.Adapter != "" {
		t.Errorf("unexpected expert request %+v", req)
	}
	expert = 5
	if *req.Expert != 4 {
		t.Error("request should copy the expert id")
	}

	if req := (Params{Mode: types.ModeExpert}).request("img", nil); req.Mode() != types.ModeAuto {
		t.Error("expert mode without an expert is auto-routed")
	}

	seg := Params{Mode: types.ModeSegment, SegmentBox: boxPtr(300, 300, 500, 500)}
	req = seg.request("img", boxPtr(200, 200, 600, 600))
	if req.Box == nil || *req.Box != types.Box(250, 250, 750, 750) {
		t.Errorf("Expected box prompt in crop space, got %v", req.Box)
	}
	if req := seg.request("img", boxPtr(600, 600, 900, 900)); req.Box != nil {
		t.Errorf("prompt outside the crop should be dropped, got %v", req.Box)
	}
}

func TestStaleRunResultDropped(t *testing.T) {
	src := createTestSource(t, 100, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))
	set.SetBox(1, boxPtr(500, 500, 1000, 1000))

	var mu sync.Mutex
	fc := &fakeClient{failAt: -1}
	fc.beforeRet = func(call int) {
		if call == 0 {
			mu.Lock()
			set.ClearAll()
			mu.Unlock()
		}
	}
	out := New(fc, nil, nil, WithLocker(&mu)).Run(context.Background(), src, set, Params{})

	if !out.Superseded {
		t.Error("Expected the run to be superseded")
	}
	if set.Populated() {
		t.Error("a superseded result must not be stored")
	}
	if len(fc.requests) != 1 {
		t.Errorf("superseded run should stop, got %d requests", len(fc.requests))
	}
}

func TestEditedRegionResultDropped(t *testing.T) {
	click := `{"output":"<tool_call>{\"name\":\"click\",\"arguments\":{\"coordinate\":[500,500]}}</tool_call>"}`
	edits := []struct {
		name string
		edit func(set *regions.Set)
		box  *types.BoundingBox
	}{
		{"moved", func(set *regions.Set) { set.SetBox(0, boxPtr(600, 600, 1000, 1000)) }, boxPtr(600, 600, 1000, 1000)},
		{"cleared", func(set *regions.Set) { set.ClearRegion(0) }, nil},
	}
	for _, tc := range edits {
		t.Run(tc.name, func(t *testing.T) {
			src := createTestSource(t, 100, 100)
			set := regions.NewSet()
			set.SetBox(0, boxPtr(0, 0, 500, 500))
			set.SetBox(1, boxPtr(500, 500, 1000, 1000))

			var mu sync.Mutex
			fc := &fakeClient{failAt: -1, answers: []string{click, click}}
			fc.beforeRet = func(call int) {
				if call == 0 {
					mu.Lock()
					tc.edit(set)
					mu.Unlock()
				}
			}
			out := New(fc, nil, nil, WithLocker(&mu)).Run(context.Background(), src, set, Params{})

			if out.Err != nil || out.Superseded {
				t.Fatalf("an edit is not a failure, got err=%v superseded=%v", out.Err, out.Superseded)
			}
			if len(fc.requests) != 2 || len(out.Regions) != 2 {
				t.Fatalf("the run should go on to region 1, got %d requests", len(fc.requests))
			}
			if !out.Regions[0].Discarded || out.Regions[0].Stored {
				t.Errorf("Expected region 0 discarded, got %+v", out.Regions[0])
			}
			if !out.Regions[1].Stored {
				t.Errorf("Expected region 1 stored, got %+v", out.Regions[1])
			}

			r0, _ := set.Region(0)
			if r0.Response != nil || r0.SentDimensions != nil {
				t.Error("the old crop's result must not be stored on the edited region")
			}
			if (r0.Box == nil) != (tc.box == nil) || (r0.Box != nil && *r0.Box != *tc.box) {
				t.Errorf("edit should stand, got box %v", r0.Box)
			}
			if a := Annotate(r0); a.Point != nil {
				t.Errorf("edited region should have no point, got %v", a.Point)
			}
			r1, _ := set.Region(1)
			if a := Annotate(r1); a.Point == nil || *a.Point != (types.Point{X: 750, Y: 750}) {
				t.Errorf("Expected region 1 point [750,750], got %v", a.Point)
			}
		})
	}
}

func TestCacheReuse(t *testing.T) {
	src := createTestSource(t, 100, 100)
	set := regions.NewSet()
	set.SetBox(0, boxPtr(0, 0, 500, 500))

	mem := cache.NewMemory()
	fc := &fakeClient{failAt: -1}
	o := New(fc, nil, nil, WithCache(mem))

	o.Run(context.Background(), src, set, Params{Prompt: "p"})
	out := o.Run(context.Background(), src, set, Params{Prompt: "p"})

	if len(fc.requests) != 1 {
		t.Errorf("second run should be served from cache, got %d requests", len(fc.requests))
	}
	if !out.Regions[0].Cached || !out.Populated {
		t.Errorf("Expected cached populated outcome, got %+v", out.Regions[0])
	}
}

func TestAnnotate(t *testing.T) {
	res, _ := types.ParseResult([]byte(`{"output":"<tool_call>{\"name\":\"click\",\"arguments\":{\"coordinate\":[500,500],\"bbox_2d\":[0,0,1000,1000]}}</tool_call>"}`))
	box := types.Box(200, 200, 600, 800)
	a := Annotate(regions.Region{Box: &box, Response: res})

	if a.ToolCall == nil || a.ToolCall.Name != "click" {
		t.Fatal("Expected click tool call")
	}
	if a.Point == nil || *a.Point != (types.Point{X: 400, Y: 500}) {
		t.Errorf("Expected [400,500], got %v", a.Point)
	}
	if a.BBox == nil || *a.BBox != box {
		t.Errorf("Expected region box, got %v", a.BBox)
	}

	whole := Annotate(regions.Region{Response: res})
	if *whole.Point != (types.Point{X: 500, Y: 500}) {
		t.Errorf("whole-image coordinates should pass through, got %v", whole.Point)
	}
}

func TestAnnotateSegmentation(t *testing.T) {
	res, _ := types.ParseResult([]byte(`{"text":"","boxes":[[0,0,50,25],[10,10,10,20],[1,2,3]],"scores":[0.9,0.1,0.2]}`))
	box := types.Box(500, 0, 1000, 500)
	sent := types.Size{Width: 100, Height: 50}
	a := Annotate(regions.Region{Box: &box, Response: res, SentDimensions: &sent})

	if len(a.Detections) != 1 {
		t.Fatalf("Expected one valid detection, got %v", a.Detections)
	}
	if a.Detections[0] != types.Box(500, 0, 750, 250) {
		t.Errorf("unexpected detection %v", a.Detections[0])
	}
	if a.ToolCall != nil || a.Empty() {
		t.Error("Expected detections without tool call")
	}
}

func TestAnnotateMalformedToolCall(t *testing.T) {
	res, _ := types.ParseResult([]byte(`{"output":"<tool_call>{broken</tool_call>"}`))
	a := Annotate(regions.Region{Response: res})
	if a.ToolCall != nil || !a.Empty() {
		t.Error("malformed tool call should give no annotation")
	}
	if a.Text == "" {
		t.Error("raw text should still be shown")
	}
}

package server

import (
	"time"

	regionconsole "github.com/menta2k/region-console"
	"github.com/menta2k/region-console/pkg/orchestrator"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/router"
	"github.com/menta2k/region-console/pkg/types"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ImageRequest loads a screenshot from a data URL or a path/URL.
type ImageRequest struct {
	DataURL string `json:"data_url"`
	Source  string `json:"source"`
}

// BoxRequest sets or clears a region box. A missing box clears it.
type BoxRequest struct {
	Box *types.BoundingBox `json:"box"`
}

// ActiveRequest moves the active region.
type ActiveRequest struct {
	Index int `json:"index"`
}

// ViewportRequest sets the displayed image size in screen pixels.
type ViewportRequest struct {
	Width  float64 `json:"width" binding:"gt=0"`
	Height float64 `json:"height" binding:"gt=0"`
}

// PointerRequest is one editor pointer event.
type PointerRequest struct {
	Event string  `json:"event" binding:"required,oneof=down move up cancel"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// PointerResponse reports whether a pointer-up committed a box.
type PointerResponse struct {
	Committed bool                      `json:"committed"`
	Editor    regionconsole.EditorState `json:"editor"`
	Active    int                       `json:"active"`
}

// PickRequest names a catalog entry.
type PickRequest struct {
	Name string `json:"name" binding:"required"`
}

// AssignResponse reports what a picker selection did.
type AssignResponse struct {
	regions.AssignOutcome
	Session regionconsole.Snapshot `json:"session"`
}

// RunRequest holds the run parameters.
type RunRequest struct {
	Prompt     string             `json:"prompt"`
	Mode       string             `json:"mode"`
	Expert     *int               `json:"expert"`
	SegmentBox *types.BoundingBox `json:"segment_box"`
}

func (r RunRequest) params() orchestrator.Params {
	return orchestrator.Params{
		Prompt:     r.Prompt,
		Mode:       types.ParseMode(r.Mode),
		Expert:     r.Expert,
		SegmentBox: r.SegmentBox,
	}
}

// RegionResult is one region's part of a run.
type RegionResult struct {
	Index     int                `json:"index"`
	Box       *types.BoundingBox `json:"box"`
	Sent      types.Size         `json:"sent"`
	Fallback  bool               `json:"fallback,omitempty"`
	Cached    bool               `json:"cached,omitempty"`
	Stored    bool               `json:"stored"`
	Discarded bool               `json:"discarded,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// RunResponse is the outcome of a run and the session after it.
type RunResponse struct {
	RunID      string                 `json:"run_id"`
	Populated  bool                   `json:"populated"`
	Superseded bool                   `json:"superseded,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Regions    []RegionResult         `json:"regions"`
	Session    regionconsole.Snapshot `json:"session"`
}

func newRunResponse(out orchestrator.Outcome, snap regionconsole.Snapshot) RunResponse {
	resp := RunResponse{
		RunID:      out.RunID,
		Populated:  out.Populated,
		Superseded: out.Superseded,
		Error:      out.ErrorMessage(),
		DurationMS: out.Duration.Milliseconds(),
		Regions:    make([]RegionResult, 0, len(out.Regions)),
		Session:    snap,
	}
	for _, r := range out.Regions {
		rr := RegionResult{
			Index:     r.Index,
			Box:       r.Box,
			Sent:      r.Sent,
			Fallback:  r.Fallback,
			Cached:    r.Cached,
			Stored:    r.Stored,
			Discarded: r.Discarded,
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		resp.Regions = append(resp.Regions, rr)
	}
	return resp
}

// StatusResponse is the backend liveness.
type StatusResponse struct {
	Status    router.Status `json:"status"`
	CheckedAt *time.Time    `json:"checked_at,omitempty"`
}

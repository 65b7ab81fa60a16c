package orchestrator

import (
	"math"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/toolcall"
	"github.com/menta2k/region-console/pkg/types"
)

var fullFrame = types.Box(0, 0, types.Scale, types.Scale)

// Annotation is what a region's response means in source image RU.
type Annotation struct {
	// Text is shown when the response carries no tool call.
	Text     string             `json:"text"`
	ToolCall *types.ToolCall    `json:"tool_call,omitempty"`
	Point    *types.Point       `json:"point,omitempty"`
	BBox     *types.BoundingBox `json:"bbox_2d,omitempty"`
	// Detections are segmentation boxes.
	Detections []types.BoundingBox `json:"detections,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Empty reports whether there is nothing to draw.
func (a Annotation) Empty() bool {
	return a.Point == nil && a.BBox == nil && len(a.Detections) == 0
}

// Annotate interprets the response stored in r. Tool-call geometry is in
// the RU of the image that was sent and is mapped through the region's box
// when the region was cropped. Segmentation boxes are pixels of the sent
// image and are mapped through its size.
func Annotate(r regions.Region) Annotation {
	var a Annotation
	res := r.Response
	if res == nil {
		return a
	}
	a.Text = res.DisplayText()
	if msg, ok := res.ErrorMessage(); ok {
		a.Error = msg
	}

	if tc, ok := toolcall.Extract(a.Text); ok {
		if r.Box != nil {
			tc = toolcall.TransformToSource(tc, *r.Box)
		}
		a.ToolCall = &tc
		if p, ok := toolcall.Coordinate(tc.Arguments); ok {
			a.Point = &p
		}
		if b, ok := toolcall.BBox2D(tc.Arguments); ok {
			a.BBox = &b
		}
	}

	if len(res.Boxes) > 0 && r.SentDimensions != nil && !r.SentDimensions.Empty() {
		parent := fullFrame
		if r.Box != nil {
			parent = *r.Box
		}
		for _, raw := range res.Boxes {
			if len(raw) != 4 {
				continue
			}
			px := types.Box(roundPx(raw[0]), roundPx(raw[1]), roundPx(raw[2]), roundPx(raw[3]))
			b := coords.ClampBox(coords.ComposeChildIntoParent(px, *r.SentDimensions, parent))
			if b.Valid() {
				a.Detections = append(a.Detections, b)
			}
		}
	}
	return a
}

func roundPx(v float64) int {
	return int(math.Floor(v + 0.5))
}

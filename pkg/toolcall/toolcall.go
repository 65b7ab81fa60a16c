// Package toolcall extracts the structured action a model may embed in its
// text output and maps its coordinates out of crop space.
package toolcall

import (
	"encoding/json"
	"math"
	"regexp"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/types"
)

// Argument keys carrying geometry, both in RU of the image the model saw.
const (
	ArgCoordinate = "coordinate"
	ArgBBox2D     = "bbox_2d"
)

var blockPattern = regexp.MustCompile(`<tool_call>\s*([\s\S]*?)\s*</tool_call>`)

// Extract returns the first tool call in output. A missing block, invalid
// JSON, or a missing name all mean there is no tool call.
func Extract(output string) (types.ToolCall, bool) {
	m := blockPattern.FindStringSubmatch(output)
	if m == nil {
		return types.ToolCall{}, false
	}
	var tc types.ToolCall
	if err := json.Unmarshal([]byte(m[1]), &tc); err != nil {
		return types.ToolCall{}, false
	}
	if tc.Name == "" {
		return types.ToolCall{}, false
	}
	if tc.Arguments == nil {
		tc.Arguments = map[string]any{}
	}
	return tc, true
}

// Coordinate reads a [x, y] point argument.
func Coordinate(args map[string]any) (types.Point, bool) {
	v, ok := numbers(args[ArgCoordinate], 2)
	if !ok {
		return types.Point{}, false
	}
	return types.Point{X: v[0], Y: v[1]}, true
}

// BBox2D reads a [x1, y1, x2, y2] box argument.
func BBox2D(args map[string]any) (types.BoundingBox, bool) {
	v, ok := numbers(args[ArgBBox2D], 4)
	if !ok {
		return types.BoundingBox{}, false
	}
	return types.Box(v[0], v[1], v[2], v[3]), true
}

// TransformToSource returns a copy of tc with coordinate and bbox_2d mapped
// from the RU space of crop to the source image's RU space. Other arguments
// are copied unchanged.
func TransformToSource(tc types.ToolCall, crop types.BoundingBox) types.ToolCall {
	out := types.ToolCall{Name: tc.Name, Arguments: make(map[string]any, len(tc.Arguments))}
	for k, v := range tc.Arguments {
		out.Arguments[k] = v
	}
	if p, ok := Coordinate(tc.Arguments); ok {
		p = coords.MapPointCropToSource(p, crop)
		out.Arguments[ArgCoordinate] = []int{p.X, p.Y}
	}
	if b, ok := BBox2D(tc.Arguments); ok {
		b = coords.MapBoxCropToSource(b, crop)
		out.Arguments[ArgBBox2D] = b.Array()
	}
	return out
}

// numbers reads a JSON array of exactly n numbers, rounded to int.
func numbers(v any, n int) ([]int, bool) {
	var out []int
	switch arr := v.(type) {
	case []any:
		if len(arr) != n {
			return nil, false
		}
		for _, e := range arr {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, int(math.Floor(f+0.5)))
		}
	case []int:
		if len(arr) != n {
			return nil, false
		}
		out = append(out, arr...)
	case [4]int:
		if n != 4 {
			return nil, false
		}
		out = append(out, arr[:]...)
	default:
		return nil, false
	}
	return out, true
}

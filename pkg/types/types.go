package types

import (
	"encoding/json"
	"fmt"
)

// Scale is the extent of the normalized ("RU") coordinate space.
const Scale = 1000

// BoundingBox is an axis-aligned box given by its corners (X1,Y1) and (X2,Y2).
// Whether the values are RU or pixels depends on the caller; the frame
// the box refers to must be tracked alongside it.
type BoundingBox struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Box is shorthand for constructing a BoundingBox.
func Box(x1, y1, x2, y2 int) BoundingBox {
	return BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width returns X2-X1
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Valid reports whether the box is non-degenerate.
func (b BoundingBox) Valid() bool { return b.X1 < b.X2 && b.Y1 < b.Y2 }

// Array returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Array() [4]int { return [4]int{b.X1, b.Y1, b.X2, b.Y2} }

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// MarshalJSON encodes the box as a 4-element array, the format the backend uses.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Array())
}

// UnmarshalJSON accepts a 4-element numeric array.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bounding box: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bounding box: expected 4 values, got %d", len(arr))
	}
	*b = BoundingBox{X1: roundInt(arr[0]), Y1: roundInt(arr[1]), X2: roundInt(arr[2]), Y2: roundInt(arr[3])}
	return nil
}

// PixelBox is a rectangle in pixel space given by origin and extent, the
// format annotation tools export.
type PixelBox struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Corners converts the rectangle to corner form in the same pixel space.
func (p PixelBox) Corners() BoundingBox {
	return BoundingBox{X1: p.X, Y1: p.Y, X2: p.X + p.Width, Y2: p.Y + p.Height}
}

// Point is a 2D point, RU or pixels depending on context.
type Point struct {
	X int
	Y int
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON accepts a 2-element numeric array.
func (p *Point) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("point: expected 2 values, got %d", len(arr))
	}
	*p = Point{X: roundInt(arr[0]), Y: roundInt(arr[1])}
	return nil
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether either extent is non-positive.
func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

// Mode selects how the backend handles a request.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeOCR     Mode = "ocr"
	ModeSegment Mode = "segment"
	ModeExpert  Mode = "expert"
)

// ParseMode maps user input to a Mode; unknown or empty input is ModeAuto.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeOCR, ModeSegment, ModeExpert:
		return Mode(s)
	}
	return ModeAuto
}

// InferenceRequest is the JSON body sent to the inference backend.
type InferenceRequest struct {
	ImageB64 string       `json:"image_b64"`
	Prompt   string       `json:"prompt"`
	Adapter  string       `json:"adapter,omitempty"`
	Expert   *int         `json:"expert,omitempty"`
	Box      *BoundingBox `json:"box,omitempty"`
}

// Mode derives the routing mode from the adapter field.
func (r InferenceRequest) Mode() Mode {
	switch r.Adapter {
	case string(ModeOCR):
		return ModeOCR
	case string(ModeSegment):
		return ModeSegment
	}
	if r.Expert != nil {
		return ModeExpert
	}
	return ModeAuto
}

// CatalogKind distinguishes screen-level from element-level assignments.
type CatalogKind string

const (
	KindScreen  CatalogKind = "screen"
	KindElement CatalogKind = "element"
)

// CatalogAssignment records which catalog entity produced a region's box.
// Element is empty for screen-level assignments.
type CatalogAssignment struct {
	Kind    CatalogKind `json:"kind"`
	Expert  string      `json:"expert"`
	Screen  string      `json:"screen"`
	Element string      `json:"element,omitempty"`
}

func roundInt(v float64) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}

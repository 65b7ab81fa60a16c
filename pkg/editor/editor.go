// Package editor turns pointer events over the displayed image into box
// edits of the active region.
package editor

import (
	"math"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/types"
)

const (
	// EdgeThreshold is the hit zone half-width around each box edge, in RU.
	EdgeThreshold = 20
	// MinResizeExtent is the smallest extent a resize may leave on either axis.
	MinResizeExtent = 20
	// MinDrawExtent must be exceeded on both axes for a drawn box to commit.
	MinDrawExtent = 10
)

// State is the editor's interaction state.
type State int

const (
	Idle State = iota
	Drawing
	Resizing
)

func (s State) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Resizing:
		return "resizing"
	}
	return "idle"
}

// Handle is an edge or corner of a box.
type Handle int

const (
	HandleNone Handle = iota
	HandleTop
	HandleRight
	HandleBottom
	HandleLeft
	HandleTopLeft
	HandleTopRight
	HandleBottomLeft
	HandleBottomRight
)

var handleNames = map[Handle]string{
	HandleNone:        "none",
	HandleTop:         "top",
	HandleRight:       "right",
	HandleBottom:      "bottom",
	HandleLeft:        "left",
	HandleTopLeft:     "tl",
	HandleTopRight:    "tr",
	HandleBottomLeft:  "bl",
	HandleBottomRight: "br",
}

func (h Handle) String() string { return handleNames[h] }

// Cursor returns the pointer cursor to show over the handle.
func (h Handle) Cursor() string {
	switch h {
	case HandleTop, HandleBottom:
		return "ns-resize"
	case HandleLeft, HandleRight:
		return "ew-resize"
	case HandleTopLeft, HandleBottomRight:
		return "nwse-resize"
	case HandleTopRight, HandleBottomLeft:
		return "nesw-resize"
	}
	return "crosshair"
}

func (h Handle) movesLeft() bool {
	return h == HandleLeft || h == HandleTopLeft || h == HandleBottomLeft
}

func (h Handle) movesRight() bool {
	return h == HandleRight || h == HandleTopRight || h == HandleBottomRight
}

func (h Handle) movesTop() bool {
	return h == HandleTop || h == HandleTopLeft || h == HandleTopRight
}

func (h Handle) movesBottom() bool {
	return h == HandleBottom || h == HandleBottomLeft || h == HandleBottomRight
}

// Target is the box being edited. regions.Set implements it for its
// active region.
type Target interface {
	ActiveBox() *types.BoundingBox
	SetActiveBox(box *types.BoundingBox) bool
}

// Editor is the box editing state machine.
type Editor struct {
	target Target
	width  float64
	height float64

	state   State
	handle  Handle
	hover   Handle
	origin  types.Point
	current types.Point
}

// New creates an editor for target.
func New(target Target) *Editor {
	return &Editor{target: target}
}

// SetViewport sets the pixel size of the container the pointer events are
// relative to.
func (e *Editor) SetViewport(width, height float64) {
	e.width = width
	e.height = height
}

// State returns the current interaction state.
func (e *Editor) State() State { return e.state }

// Handle returns the handle being dragged while resizing.
func (e *Editor) Handle() Handle { return e.handle }

// ToRU converts a container pixel position to RU, clamped to [0,1000].
func (e *Editor) ToRU(x, y float64) types.Point {
	if e.width <= 0 || e.height <= 0 {
		return types.Point{}
	}
	return coords.ClampPoint(types.Point{
		X: int(math.Floor(x/e.width*types.Scale + 0.5)),
		Y: int(math.Floor(y/e.height*types.Scale + 0.5)),
	})
}

// PointerDown starts a resize when the pointer lands on a handle of the
// active box, otherwise a new draw.
func (e *Editor) PointerDown(x, y float64) {
	p := e.ToRU(x, y)
	if box := e.target.ActiveBox(); box != nil {
		if h := HitTest(p, *box); h != HandleNone {
			e.state = Resizing
			e.handle = h
			return
		}
	}
	e.state = Drawing
	e.origin = p
	e.current = p
}

// PointerMove updates the draw preview, applies a resize, or updates the
// hover handle when idle.
func (e *Editor) PointerMove(x, y float64) {
	p := e.ToRU(x, y)
	switch e.state {
	case Resizing:
		box := e.target.ActiveBox()
		if box == nil {
			e.state = Idle
			e.handle = HandleNone
			return
		}
		resized := Resize(*box, e.handle, p)
		e.target.SetActiveBox(&resized)
	case Drawing:
		e.current = p
	default:
		e.hover = HandleNone
		if box := e.target.ActiveBox(); box != nil {
			e.hover = HitTest(p, *box)
		}
	}
}

// PointerUp ends the interaction. A draw is committed only when it is
// wider and taller than MinDrawExtent; the return value reports whether a
// drawn box was committed.
func (e *Editor) PointerUp(x, y float64) bool {
	defer e.reset()
	switch e.state {
	case Resizing:
		return false
	case Drawing:
		e.current = e.ToRU(x, y)
		box := e.drawn()
		if box.Width() > MinDrawExtent && box.Height() > MinDrawExtent {
			return e.target.SetActiveBox(&box)
		}
	}
	return false
}

// Cancel abandons any interaction in progress without touching the box.
func (e *Editor) Cancel() { e.reset() }

// Preview returns the in-progress draw box, or nil when not drawing.
func (e *Editor) Preview() *types.BoundingBox {
	if e.state != Drawing {
		return nil
	}
	b := e.drawn()
	return &b
}

// Cursor returns the cursor for the current hover or drag.
func (e *Editor) Cursor() string {
	if e.state == Resizing {
		return e.handle.Cursor()
	}
	if e.state == Drawing {
		return HandleNone.Cursor()
	}
	return e.hover.Cursor()
}

func (e *Editor) drawn() types.BoundingBox {
	return types.BoundingBox{
		X1: min(e.origin.X, e.current.X),
		Y1: min(e.origin.Y, e.current.Y),
		X2: max(e.origin.X, e.current.X),
		Y2: max(e.origin.Y, e.current.Y),
	}
}

func (e *Editor) reset() {
	e.state = Idle
	e.handle = HandleNone
	e.origin = types.Point{}
	e.current = types.Point{}
}

// HitTest returns the handle of box under p. Corners win over edges.
func HitTest(p types.Point, box types.BoundingBox) Handle {
	near := func(a, b int) bool { return abs(a-b) < EdgeThreshold }
	nearLeft := near(p.X, box.X1)
	nearRight := near(p.X, box.X2)
	nearTop := near(p.Y, box.Y1)
	nearBottom := near(p.Y, box.Y2)
	inX := p.X >= box.X1-EdgeThreshold && p.X <= box.X2+EdgeThreshold
	inY := p.Y >= box.Y1-EdgeThreshold && p.Y <= box.Y2+EdgeThreshold

	switch {
	case nearTop && nearLeft:
		return HandleTopLeft
	case nearTop && nearRight:
		return HandleTopRight
	case nearBottom && nearLeft:
		return HandleBottomLeft
	case nearBottom && nearRight:
		return HandleBottomRight
	case nearTop && inX:
		return HandleTop
	case nearBottom && inX:
		return HandleBottom
	case nearLeft && inY:
		return HandleLeft
	case nearRight && inY:
		return HandleRight
	}
	return HandleNone
}

// Resize moves the edges selected by h to p. The opposite edge anchors the
// MinResizeExtent clamp; if the anchor would push the moved edge outside
// [0,1000] the box is kept inside the frame at the minimum extent. An axis
// the handle does not move is widened to the minimum too.
func Resize(box types.BoundingBox, h Handle, p types.Point) types.BoundingBox {
	b := box
	if h.movesLeft() {
		b.X1 = min(p.X, b.X2-MinResizeExtent)
	}
	if h.movesRight() {
		b.X2 = max(p.X, b.X1+MinResizeExtent)
	}
	if h.movesTop() {
		b.Y1 = min(p.Y, b.Y2-MinResizeExtent)
	}
	if h.movesBottom() {
		b.Y2 = max(p.Y, b.Y1+MinResizeExtent)
	}
	b.X1, b.X2 = keepInside(b.X1, max(b.X2, b.X1+MinResizeExtent))
	b.Y1, b.Y2 = keepInside(b.Y1, max(b.Y2, b.Y1+MinResizeExtent))
	return b
}

func keepInside(lo, hi int) (int, int) {
	if lo < 0 {
		lo = 0
		hi = max(hi, MinResizeExtent)
	}
	if hi > types.Scale {
		hi = types.Scale
		lo = min(lo, types.Scale-MinResizeExtent)
	}
	return lo, hi
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

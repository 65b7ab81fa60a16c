// Package coords converts boxes and points between pixel space, the
// normalized 0-1000 ("RU") space, and the RU space of a cropped sub-region.
//
// All functions are pure. A zero-size frame or crop is a caller bug; the
// functions return their input unchanged in that case.
package coords

import (
	"image"
	"math"

	"github.com/menta2k/region-console/pkg/types"
)

const scale = float64(types.Scale)

// PixelBoxToNormalized converts a pixel rectangle inside a frame of the given
// size to RU coordinates of that frame.
func PixelBoxToNormalized(b types.PixelBox, frameWidth, frameHeight int) types.BoundingBox {
	if frameWidth <= 0 || frameHeight <= 0 {
		return b.Corners()
	}
	fw, fh := float64(frameWidth), float64(frameHeight)
	return types.BoundingBox{
		X1: round(float64(b.X) / fw * scale),
		Y1: round(float64(b.Y) / fh * scale),
		X2: round(float64(b.X+b.Width) / fw * scale),
		Y2: round(float64(b.Y+b.Height) / fh * scale),
	}
}

// ComposeChildIntoParent maps a box given in the child frame's units (for
// example pixels of a screen image of size childFrame) into the frame the
// parent box is expressed in.
func ComposeChildIntoParent(child types.BoundingBox, childFrame types.Size, parent types.BoundingBox) types.BoundingBox {
	if childFrame.Empty() {
		return child
	}
	fw, fh := float64(childFrame.Width), float64(childFrame.Height)
	pw, ph := float64(parent.Width()), float64(parent.Height())
	return types.BoundingBox{
		X1: round(float64(parent.X1) + float64(child.X1)/fw*pw),
		Y1: round(float64(parent.Y1) + float64(child.Y1)/fh*ph),
		X2: round(float64(parent.X1) + float64(child.X2)/fw*pw),
		Y2: round(float64(parent.Y1) + float64(child.Y2)/fh*ph),
	}
}

// MapPointCropToSource maps a point in crop RU space to the source RU space,
// given the crop box in source RU space.
func MapPointCropToSource(p types.Point, crop types.BoundingBox) types.Point {
	if !crop.Valid() {
		return p
	}
	return types.Point{
		X: round(float64(crop.X1) + float64(p.X)/scale*float64(crop.Width())),
		Y: round(float64(crop.Y1) + float64(p.Y)/scale*float64(crop.Height())),
	}
}

// MapBoxCropToSource maps both corners of a crop-space box to source space.
func MapBoxCropToSource(b types.BoundingBox, crop types.BoundingBox) types.BoundingBox {
	tl := MapPointCropToSource(types.Point{X: b.X1, Y: b.Y1}, crop)
	br := MapPointCropToSource(types.Point{X: b.X2, Y: b.Y2}, crop)
	return types.BoundingBox{X1: tl.X, Y1: tl.Y, X2: br.X, Y2: br.Y}
}

// MapPointSourceToCrop is the inverse of MapPointCropToSource.
func MapPointSourceToCrop(p types.Point, crop types.BoundingBox) types.Point {
	if !crop.Valid() {
		return p
	}
	return types.Point{
		X: round(float64(p.X-crop.X1) / float64(crop.Width()) * scale),
		Y: round(float64(p.Y-crop.Y1) / float64(crop.Height()) * scale),
	}
}

// MapBoxSourceToCrop is the inverse of MapBoxCropToSource.
func MapBoxSourceToCrop(b types.BoundingBox, crop types.BoundingBox) types.BoundingBox {
	tl := MapPointSourceToCrop(types.Point{X: b.X1, Y: b.Y1}, crop)
	br := MapPointSourceToCrop(types.Point{X: b.X2, Y: b.Y2}, crop)
	return types.BoundingBox{X1: tl.X, Y1: tl.Y, X2: br.X, Y2: br.Y}
}

// NormalizedToPixel converts an RU box to a pixel rectangle of a
// width x height image, rounding each corner to the nearest pixel.
func NormalizedToPixel(b types.BoundingBox, width, height int) image.Rectangle {
	fw, fh := float64(width), float64(height)
	return image.Rect(
		round(float64(b.X1)/scale*fw),
		round(float64(b.Y1)/scale*fh),
		round(float64(b.X2)/scale*fw),
		round(float64(b.Y2)/scale*fh),
	)
}

// NormalizedPointToPixel converts an RU point to a pixel position.
func NormalizedPointToPixel(p types.Point, width, height int) image.Point {
	return image.Pt(
		round(float64(p.X)/scale*float64(width)),
		round(float64(p.Y)/scale*float64(height)),
	)
}

// Clamp limits v to [0, 1000].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > types.Scale {
		return types.Scale
	}
	return v
}

// ClampBox clamps all four coordinates to [0, 1000].
func ClampBox(b types.BoundingBox) types.BoundingBox {
	return types.BoundingBox{X1: Clamp(b.X1), Y1: Clamp(b.Y1), X2: Clamp(b.X2), Y2: Clamp(b.Y2)}
}

// ClampPoint clamps both coordinates to [0, 1000].
func ClampPoint(p types.Point) types.Point {
	return types.Point{X: Clamp(p.X), Y: Clamp(p.Y)}
}

// round matches JavaScript Math.round (half rounds toward +Inf), which is
// what the backend and the catalog tooling use.
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

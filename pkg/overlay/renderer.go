// Package overlay draws region boxes and response annotations over the
// source image.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

// Palette holds the region colors by index, matching regions.ColorNames.
var Palette = [regions.MaxRegions]color.NRGBA{
	{59, 130, 246, 255}, // blue
	{34, 197, 94, 255},  // green
	{249, 115, 22, 255}, // orange
	{168, 85, 247, 255}, // purple
	{236, 72, 153, 255}, // pink
	{6, 182, 212, 255},  // cyan
	{234, 179, 8, 255},  // yellow
	{239, 68, 68, 255},  // red
}

var (
	markerFill   = color.NRGBA{239, 68, 68, 255}
	markerRing   = color.NRGBA{255, 255, 255, 255}
	bboxFill     = color.NRGBA{34, 197, 94, 77}
	bboxStroke   = color.NRGBA{34, 197, 94, 255}
	detectStroke = color.NRGBA{250, 204, 21, 255}
	labelText    = color.NRGBA{255, 255, 255, 255}
)

const (
	dashOn  = 8
	dashOff = 6
	// inactiveAlpha dims the outline of regions other than the active one.
	inactiveAlpha = 140
)

// RegionView is one region as the renderer sees it. All geometry is in
// source RU.
type RegionView struct {
	Index      int
	Box        *types.BoundingBox
	Point      *types.Point
	BBox       *types.BoundingBox
	Detections []types.BoundingBox
}

// RegionColor returns the palette color for region i.
func RegionColor(i int) color.NRGBA {
	if i < 0 {
		i = 0
	}
	return Palette[i%regions.MaxRegions]
}

// Render returns a copy of src with every view drawn on it. The active
// region is drawn solid and on top; others are dashed and dimmed.
func Render(src image.Image, views []RegionView, active int) *image.NRGBA {
	img := imaging.Clone(src)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	stroke := int(math.Max(2, 0.003*float64(minInt(w, h))))

	ordered := append([]RegionView(nil), views...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index != active && ordered[j].Index == active
	})

	for _, v := range ordered {
		if v.Box == nil {
			continue
		}
		r := coords.NormalizedToPixel(*v.Box, w, h)
		c := RegionColor(v.Index)
		if v.Index == active {
			drawRect(img, r, c, stroke)
		} else {
			c.A = inactiveAlpha
			drawDashedRect(img, r, c, stroke)
		}
		drawLabel(img, r, fmt.Sprintf("R%d", v.Index+1), RegionColor(v.Index))
	}

	for _, v := range ordered {
		for _, d := range v.Detections {
			drawRect(img, coords.NormalizedToPixel(d, w, h), detectStroke, stroke)
		}
		if v.BBox != nil {
			r := coords.NormalizedToPixel(*v.BBox, w, h)
			draw.Draw(img, r, image.NewUniform(bboxFill), image.Point{}, draw.Over)
			drawRect(img, r, bboxStroke, stroke)
		}
	}

	// Markers last so no outline hides them.
	radius := int(math.Max(4, 0.008*float64(minInt(w, h))))
	for _, v := range ordered {
		if v.Point != nil {
			p := coords.NormalizedPointToPixel(*v.Point, w, h)
			drawMarker(img, p, radius)
		}
	}
	return img
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawDashedRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x += dashOn + dashOff {
		end := minInt(x+dashOn, r.Max.X)
		for s := 0; s < stroke; s++ {
			drawHLine(img, r.Min.Y+s, x, end, c)
			drawHLine(img, r.Max.Y-1-s, x, end, c)
		}
	}
	for y := r.Min.Y; y < r.Max.Y; y += dashOn + dashOff {
		end := minInt(y+dashOn, r.Max.Y)
		for s := 0; s < stroke; s++ {
			drawVLine(img, r.Min.X+s, y, end, c)
			drawVLine(img, r.Max.X-1-s, y, end, c)
		}
	}
}

// drawLabel puts text on a filled tab above the box, or inside its top
// edge when there is no room above.
func drawLabel(img *image.NRGBA, r image.Rectangle, text string, bg color.NRGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height
	top := r.Min.Y - height
	if top < 0 {
		top = r.Min.Y
	}
	tab := image.Rect(r.Min.X, top, r.Min.X+width, top+height)
	draw.Draw(img, tab, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot:  fixed.P(tab.Min.X+2, tab.Min.Y+face.Ascent),
	}
	d.DrawString(text)
}

func drawMarker(img *image.NRGBA, p image.Point, radius int) {
	ring := radius + 2
	for dy := -ring; dy <= ring; dy++ {
		for dx := -ring; dx <= ring; dx++ {
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= radius*radius:
				setPixel(img, p.X+dx, p.Y+dy, markerFill)
			case d2 <= ring*ring:
				setPixel(img, p.X+dx, p.Y+dy, markerRing)
			}
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x < x1; x++ {
		setPixel(img, x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y < y1; y++ {
		setPixel(img, x, y, c)
	}
}

// setPixel blends c over the pixel at (x, y); out-of-bounds writes are
// ignored.
func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	i := img.PixOffset(x, y)
	if c.A == 255 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 255
		return
	}
	a := uint32(c.A)
	inv := 255 - a
	img.Pix[i+0] = uint8((uint32(c.R)*a + uint32(img.Pix[i+0])*inv) / 255)
	img.Pix[i+1] = uint8((uint32(c.G)*a + uint32(img.Pix[i+1])*inv) / 255)
	img.Pix[i+2] = uint8((uint32(c.B)*a + uint32(img.Pix[i+2])*inv) / 255)
	img.Pix[i+3] = uint8(a + uint32(img.Pix[i+3])*inv/255)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

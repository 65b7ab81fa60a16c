package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

var white = color.NRGBA{255, 255, 255, 255}

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, white)
		}
	}
	return img
}

func boxPtr(x1, y1, x2, y2 int) *types.BoundingBox {
	b := types.Box(x1, y1, x2, y2)
	return &b
}

func TestPaletteMatchesColorNames(t *testing.T) {
	if len(Palette) != len(regions.ColorNames) {
		t.Fatalf("palette has %d colors, names %d", len(Palette), len(regions.ColorNames))
	}
	if RegionColor(8) != RegionColor(0) {
		t.Error("colors should wrap around")
	}
}

func TestRenderActiveSolidInactiveDashed(t *testing.T) {
	src := createTestImage(200, 100)
	views := []RegionView{
		{Index: 0, Box: boxPtr(0, 0, 500, 500)},
		{Index: 1, Box: boxPtr(500, 500, 1000, 1000)},
	}
	out := Render(src, views, 0)

	if got := out.NRGBAAt(0, 25); got != Palette[0] {
		t.Errorf("active edge should be solid blue, got %v", got)
	}
	if got := out.NRGBAAt(104, 50); got == white || got == Palette[1] {
		t.Errorf("inactive edge should be dimmed green, got %v", got)
	}
	if got := out.NRGBAAt(110, 50); got != white {
		t.Errorf("Expected a dash gap at (110,50), got %v", got)
	}
}

func TestRenderLeavesSourceUntouched(t *testing.T) {
	src := createTestImage(50, 50)
	Render(src, []RegionView{{Index: 0, Box: boxPtr(0, 0, 1000, 1000), Point: &types.Point{X: 500, Y: 500}}}, 0)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if src.NRGBAAt(x, y) != white {
				t.Fatalf("source modified at (%d,%d)", x, y)
			}
		}
	}
}

func TestRenderAnnotations(t *testing.T) {
	src := createTestImage(200, 100)
	views := []RegionView{{
		Index:      2,
		Point:      &types.Point{X: 500, Y: 500},
		BBox:       boxPtr(100, 100, 300, 900),
		Detections: []types.BoundingBox{types.Box(700, 200, 900, 800)},
	}}
	out := Render(src, views, 0)

	if got := out.NRGBAAt(100, 50); got != markerFill {
		t.Errorf("Expected marker at the point, got %v", got)
	}
	fill := out.NRGBAAt(40, 50)
	if fill == white || fill.G <= fill.R {
		t.Errorf("Expected translucent green fill, got %v", fill)
	}
	if got := out.NRGBAAt(140, 50); got != detectStroke {
		t.Errorf("Expected detection outline, got %v", got)
	}
}

func TestRenderNoViews(t *testing.T) {
	src := createTestImage(10, 10)
	out := Render(src, nil, 0)
	if out.Bounds() != src.Bounds() || out.NRGBAAt(5, 5) != white {
		t.Error("Expected an unchanged copy")
	}
}

func TestSetPixelBlends(t *testing.T) {
	img := createTestImage(2, 2)
	setPixel(img, 0, 0, color.NRGBA{0, 0, 0, 128})
	got := img.NRGBAAt(0, 0)
	if got.R < 120 || got.R > 135 || got.A != 255 {
		t.Errorf("Expected mid gray, got %v", got)
	}
	setPixel(img, -1, 5, color.NRGBA{0, 0, 0, 255})
}

func BenchmarkRender(b *testing.B) {
	src := createTestImage(1920, 1080)
	views := make([]RegionView, regions.MaxRegions)
	for i := range views {
		views[i] = RegionView{Index: i, Box: boxPtr(i*100, i*100, i*100+200, i*100+200)}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Render(src, views, 3)
	}
}

package cropper

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/types"
)

// createTestImage creates an image with a bright central region
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func createTestSource(t testing.TB, width, height int) *processing.Source {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(width, height)); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	src, err := processing.NewProcessor().SourceFromBytes(buf.Bytes())
	if err != nil || !src.Decoded() {
		t.Fatalf("source failed: %v", err)
	}
	return src
}

func boxPtr(x1, y1, x2, y2 int) *types.BoundingBox {
	b := types.Box(x1, y1, x2, y2)
	return &b
}

func TestNew(t *testing.T) {
	c := New(nil)
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.config.Format != processing.FormatPNG {
		t.Errorf("Expected png by default, got %s", c.config.Format)
	}
}

func TestCropScenarioSize(t *testing.T) {
	src := createTestSource(t, 1000, 800)
	crop := New(nil).Crop(src, boxPtr(0, 0, 500, 500))

	if crop.Fallback {
		t.Fatal("unexpected fallback")
	}
	if crop.Size != (types.Size{Width: 500, Height: 400}) {
		t.Errorf("Expected 500x400, got %+v", crop.Size)
	}
	if crop.Rect != image.Rect(0, 0, 500, 400) {
		t.Errorf("unexpected rect %v", crop.Rect)
	}

	decoded, err := processing.NewProcessor().SourceFromDataURL(crop.Payload)
	if err != nil || !decoded.Decoded() {
		t.Fatalf("crop payload does not decode: %v", err)
	}
	if decoded.Size != crop.Size {
		t.Errorf("payload size %+v differs from reported %+v", decoded.Size, crop.Size)
	}
}

func TestCropNilBoxIsIdentity(t *testing.T) {
	src := createTestSource(t, 320, 200)
	crop := New(nil).Crop(src, nil)
	if crop.Payload != src.Payload {
		t.Error("nil box should pass the original payload through")
	}
	if crop.Size != src.Size || !crop.Rect.Empty() || crop.Fallback {
		t.Errorf("unexpected identity crop %+v", crop)
	}
}

func TestCropDoesNotMutateSource(t *testing.T) {
	src := createTestSource(t, 200, 200)
	before := src.Image.At(100, 100)
	c := New(nil)
	for i := 0; i < 3; i++ {
		c.Crop(src, boxPtr(250, 250, 750, 750))
	}
	if src.Image.At(100, 100) != before || src.Image.Bounds() != image.Rect(0, 0, 200, 200) {
		t.Error("cropping must not touch the source raster")
	}
}

func TestCropFallbackOnUndecodable(t *testing.T) {
	payload := processing.EncodeDataURL("image/png", []byte("garbage"))
	src, err := processing.NewProcessor().SourceFromDataURL(payload)
	if err != nil {
		t.Fatal(err)
	}
	crop := New(nil).Crop(src, boxPtr(0, 0, 500, 500))
	if !crop.Fallback || crop.Payload != payload {
		t.Errorf("Expected fallback to original payload, got %+v", crop)
	}
}

func TestCropMaxDim(t *testing.T) {
	src := createTestSource(t, 1000, 1000)
	c := NewWithConfig(CropConfig{Format: processing.FormatJPEG, Quality: 80, MaxDim: 100}, nil)
	crop := c.Crop(src, boxPtr(0, 0, 1000, 500))
	if crop.Size != (types.Size{Width: 100, Height: 50}) {
		t.Errorf("Expected 100x50, got %+v", crop.Size)
	}
	if crop.Rect != image.Rect(0, 0, 1000, 500) {
		t.Errorf("rect should stay in source pixels, got %v", crop.Rect)
	}
}

func TestPixelRect(t *testing.T) {
	bounds := image.Rect(10, 20, 110, 220)
	got := PixelRect(bounds, types.Box(500, 500, 1000, 1000))
	if got != image.Rect(60, 120, 110, 220) {
		t.Errorf("unexpected rect %v", got)
	}
}

func BenchmarkCrop(b *testing.B) {
	src := createTestSource(b, 1920, 1080)
	c := New(nil)
	box := boxPtr(200, 46, 800, 956)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Crop(src, box)
	}
}

package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/region-console/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func pngBytes(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatPNG, "PNG": FormatPNG, "jpg": FormatJPEG, "jpeg": FormatJPEG, "webp": FormatWebP}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("gif"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	url := EncodeDataURL("image/png", []byte{1, 2, 3})
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected data URL %q", url)
	}
	mime, data, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if mime != "image/png" || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("unexpected decode %q %v", mime, data)
	}
}

func TestDecodeDataURLErrors(t *testing.T) {
	for _, in := range []string{"data:image/png;base64", "data:image/png,abc", "data:image/png;base64,@@@", ""} {
		if _, _, err := DecodeDataURL(in); !errors.Is(err, ErrInvalidDataURL) {
			t.Errorf("%q: expected ErrInvalidDataURL, got %v", in, err)
		}
	}
}

func TestSourceFromBytes(t *testing.T) {
	p := NewProcessor()
	src, err := p.SourceFromBytes(pngBytes(t, createTestImage(120, 80)))
	if err != nil {
		t.Fatalf("SourceFromBytes failed: %v", err)
	}
	if !src.Decoded() {
		t.Fatalf("Expected decoded source, got %v", src.DecodeErr)
	}
	if src.Size != (types.Size{Width: 120, Height: 80}) {
		t.Errorf("unexpected size %+v", src.Size)
	}
	if src.Format != "png" || !strings.HasPrefix(src.Payload, "data:image/png;base64,") {
		t.Errorf("unexpected format %q / payload prefix", src.Format)
	}
	if info := src.Info(); info.AspectRatio != 1.5 || info.Area != 9600 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestSourceUndecodable(t *testing.T) {
	p := NewProcessor()
	payload := EncodeDataURL("image/png", []byte("definitely not a png"))
	src, err := p.SourceFromDataURL(payload)
	if err != nil {
		t.Fatalf("undecodable image should still produce a source: %v", err)
	}
	if src.Decoded() || src.DecodeErr == nil {
		t.Error("Expected decode error to be recorded")
	}
	if src.Payload != payload {
		t.Error("payload must be kept verbatim")
	}
}

func TestEncodeFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(64, 48)
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		url, size, err := p.Encode(img, EncodeOptions{Format: f, Quality: 80})
		if err != nil {
			t.Fatalf("%s: encode failed: %v", f, err)
		}
		if size != (types.Size{Width: 64, Height: 48}) {
			t.Errorf("%s: unexpected size %+v", f, size)
		}
		src, err := p.SourceFromDataURL(url)
		if err != nil || !src.Decoded() {
			t.Fatalf("%s: payload does not decode: %v %v", f, err, src.DecodeErr)
		}
	}
	if _, _, err := p.Encode(img, EncodeOptions{Format: "bmp"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestEncodeMaxDim(t *testing.T) {
	p := NewProcessor()
	_, size, err := p.Encode(createTestImage(400, 100), EncodeOptions{MaxDim: 200})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if size != (types.Size{Width: 200, Height: 50}) {
		t.Errorf("Expected 200x50, got %+v", size)
	}
}

func TestLoadSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, pngBytes(t, createTestImage(30, 20)), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := NewProcessor().LoadSource(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if src.Size.Width != 30 {
		t.Errorf("unexpected width %d", src.Size.Width)
	}
}

func TestLoadSourceURL(t *testing.T) {
	data := pngBytes(t, createTestImage(10, 10))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("hi"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	p := NewProcessor()
	src, err := p.LoadSource(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("LoadSource failed: %v", err)
	}
	if !src.Decoded() {
		t.Error("Expected decoded source")
	}
	if _, err := p.LoadSource(context.Background(), srv.URL+"/text"); err == nil {
		t.Error("Expected error for non-image content type")
	}
}

func TestValidateImage(t *testing.T) {
	if err := ValidateImage(createTestImage(50, 50), 32); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if err := ValidateImage(createTestImage(10, 50), 32); err == nil {
		t.Error("Expected error for small image")
	}
	if err := ValidateImage(nil, 1); err == nil {
		t.Error("Expected error for nil image")
	}
}

func BenchmarkEncodePNG(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(640, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Encode(img, EncodeOptions{Format: FormatPNG})
	}
}

package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/region-console/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for payload formats the console cannot produce.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidDataURL is returned for strings that are not base64 data URLs.
	ErrInvalidDataURL = errors.New("invalid data URL")
)

// Format is an encoding for outgoing image payloads.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// ParseFormat accepts png, jpg/jpeg and webp, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// MIME returns the media type of the format.
func (f Format) MIME() string {
	return "image/" + string(f)
}

// EncodeOptions controls payload encoding.
type EncodeOptions struct {
	Format   Format
	Quality  int
	Lossless bool
	// MaxDim limits the long side; 0 keeps the size.
	MaxDim int
}

// Source is a loaded source image. Payload is the data URL exactly as
// received. Image is nil when the payload could not be decoded; DecodeErr
// then says why.
type Source struct {
	Payload   string
	Image     image.Image
	Format    string
	Size      types.Size
	DecodeErr error
}

// Decoded reports whether the raster is available.
func (s *Source) Decoded() bool {
	return s != nil && s.Image != nil
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Format      string  `json:"format,omitempty"`
}

// Info returns basic information about the source
func (s *Source) Info() ImageInfo {
	info := ImageInfo{Width: s.Size.Width, Height: s.Size.Height, Format: s.Format, Area: s.Size.Width * s.Size.Height}
	if s.Size.Height > 0 {
		info.AspectRatio = float64(s.Size.Width) / float64(s.Size.Height)
	}
	return info
}

// Processor handles image loading and payload encoding
type Processor struct {
	client    *http.Client
	userAgent string
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "region-console/1.0",
	}
}

// SourceFromDataURL builds a source from a data URL. A malformed data URL
// is an error; an undecodable image is not, since crops fall back to the
// original payload.
func (p *Processor) SourceFromDataURL(dataURL string) (*Source, error) {
	_, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	src := &Source{Payload: dataURL}
	img, format, err := p.Decode(data)
	if err != nil {
		src.DecodeErr = err
		return src, nil
	}
	src.Image = img
	src.Format = format
	b := img.Bounds()
	src.Size = types.Size{Width: b.Dx(), Height: b.Dy()}
	return src, nil
}

// SourceFromBytes wraps raw file bytes in a data URL and decodes them.
func (p *Processor) SourceFromBytes(data []byte) (*Source, error) {
	return p.SourceFromDataURL(EncodeDataURL(http.DetectContentType(data), data))
}

// LoadSource loads a source from either a file path or URL
func (p *Processor) LoadSource(ctx context.Context, source string) (*Source, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = p.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}
	return p.SourceFromBytes(data)
}

// fetch downloads an image from a URL
func (p *Processor) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Decode decodes an image from byte data with WebP support
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}
	return nil, "", fmt.Errorf("image: unknown or unsupported format")
}

// Encode encodes img as a data URL and returns the encoded pixel size.
func (p *Processor) Encode(img image.Image, opts EncodeOptions) (string, types.Size, error) {
	if opts.MaxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > opts.MaxDim || h > opts.MaxDim {
			if w >= h {
				img = imaging.Resize(img, opts.MaxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, opts.MaxDim, imaging.Lanczos)
			}
		}
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = 90
	}

	format := opts.Format
	if format == "" {
		format = FormatPNG
	}

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return "", types.Size{}, err
		}
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", types.Size{}, err
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality)}); err != nil {
			return "", types.Size{}, err
		}
	default:
		return "", types.Size{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	b := img.Bounds()
	return EncodeDataURL(format.MIME(), buf.Bytes()), types.Size{Width: b.Dx(), Height: b.Dy()}, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// ValidateImage checks if an image meets minimum requirements
func ValidateImage(img image.Image, minSize int) error {
	if img == nil {
		return fmt.Errorf("no image")
	}
	bounds := img.Bounds()
	if bounds.Dx() < minSize || bounds.Dy() < minSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), minSize)
	}
	return nil
}

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into media type and bytes. A bare
// base64 string without the data: prefix is accepted as well.
func DecodeDataURL(s string) (string, []byte, error) {
	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return "", nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
		}
		if !strings.HasSuffix(header, ";base64") {
			return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
		}
		mime = strings.TrimSuffix(header, ";base64")
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURL)
	}
	return mime, data, nil
}

// Package cropper cuts region boxes out of the source image and encodes
// them as payloads for the inference backend.
package cropper

import (
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/types"
)

// CropConfig holds payload encoding settings for crops
type CropConfig struct {
	Format   processing.Format
	Quality  int
	Lossless bool
	// MaxDim limits the long side of the encoded crop; 0 sends it at source resolution.
	MaxDim int
}

// DefaultConfig returns PNG at source resolution.
func DefaultConfig() CropConfig {
	return CropConfig{Format: processing.FormatPNG, Quality: 90}
}

// Cropper produces region payloads. The source raster is only read.
type Cropper struct {
	processor *processing.Processor
	config    CropConfig
	logger    *zap.Logger
}

// New creates a Cropper with default configuration
func New(logger *zap.Logger) *Cropper {
	return NewWithConfig(DefaultConfig(), logger)
}

// NewWithConfig creates a Cropper with custom configuration
func NewWithConfig(config CropConfig, logger *zap.Logger) *Cropper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Format == "" {
		config.Format = processing.FormatPNG
	}
	return &Cropper{
		processor: processing.NewProcessor(),
		config:    config,
		logger:    logger,
	}
}

// Crop is the payload to send for one region.
type Crop struct {
	Payload string
	// Size is the pixel size of the image in Payload.
	Size types.Size
	// Rect is the cut rectangle in source pixels; empty for the whole image.
	Rect image.Rectangle
	// Fallback is set when the crop failed and Payload is the original image.
	Fallback bool
}

// Crop cuts box (RU of the source) out of src. A nil box passes the source
// payload through. Decode or encode failures fall back to the original
// payload and are logged.
func (c *Cropper) Crop(src *processing.Source, box *types.BoundingBox) Crop {
	identity := Crop{Payload: src.Payload, Size: src.Size}
	if box == nil {
		return identity
	}

	if !src.Decoded() {
		c.logger.Warn("crop skipped, source not decoded", zap.Stringer("box", box), zap.Error(src.DecodeErr))
		identity.Fallback = true
		return identity
	}

	rect := PixelRect(src.Image.Bounds(), *box)
	if rect.Empty() {
		c.logger.Warn("crop skipped, empty pixel rectangle", zap.Stringer("box", box), zap.Stringer("rect", rect))
		identity.Fallback = true
		return identity
	}

	cropped := imaging.Crop(src.Image, rect)
	payload, size, err := c.processor.Encode(cropped, processing.EncodeOptions{
		Format:   c.config.Format,
		Quality:  c.config.Quality,
		Lossless: c.config.Lossless,
		MaxDim:   c.config.MaxDim,
	})
	if err != nil {
		c.logger.Warn("crop encode failed, sending full image", zap.Stringer("box", box), zap.Error(err))
		identity.Fallback = true
		return identity
	}

	c.logger.Debug("cropped region",
		zap.Stringer("box", box),
		zap.Stringer("rect", rect),
		zap.Int("width", size.Width),
		zap.Int("height", size.Height))

	return Crop{Payload: payload, Size: size, Rect: rect}
}

// PixelRect converts an RU box to the pixel rectangle of an image with the
// given bounds, clipped to the bounds.
func PixelRect(bounds image.Rectangle, box types.BoundingBox) image.Rectangle {
	r := coords.NormalizedToPixel(box, bounds.Dx(), bounds.Dy())
	return r.Add(bounds.Min).Intersect(bounds)
}

// Package media compresses listing photos before they are queued, so large
// camera images do not bloat the local queue or the upload.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/farmlink/agrosync/internal/errors"
)

const (
	// DefaultMaxDimension bounds the longer side of a compressed photo.
	DefaultMaxDimension = 1280
	// DefaultQuality is the JPEG quality of a compressed photo.
	DefaultQuality = 75
	// MaxInputBytes is the largest photo accepted for compression.
	MaxInputBytes = 20 << 20
)

// PhotoInfo describes a compressed photo.
type PhotoInfo struct {
	SourceFormat string
	Width        int
	Height       int
	Bytes        int
}

// Compressor re-encodes photos as JPEG no larger than MaxDimension on
// either side.
type Compressor struct {
	maxDimension int
	quality      int
}

// NewCompressor creates a Compressor. Zero values select the defaults.
func NewCompressor(maxDimension, quality int) *Compressor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Compressor{
		maxDimension: maxDimension,
		quality:      quality,
	}
}

// Compress decodes a JPEG, PNG, GIF or WebP photo, applies its EXIF
// orientation, downsizes it to fit and encodes it as JPEG.
func (c *Compressor) Compress(r io.Reader) ([]byte, *PhotoInfo, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if len(raw) > MaxInputBytes {
		return nil, nil, errors.New(errors.ErrValidation,
			fmt.Sprintf("photo exceeds %d MB", MaxInputBytes>>20))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrValidation, "unsupported photo format", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrValidation, "failed to decode photo", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > c.maxDimension || bounds.Dy() > c.maxDimension {
		img = imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, nil, fmt.Errorf("failed to encode photo: %w", err)
	}

	out := img.Bounds()
	return buf.Bytes(), &PhotoInfo{
		SourceFormat: format,
		Width:        out.Dx(),
		Height:       out.Dy(),
		Bytes:        buf.Len(),
	}, nil
}

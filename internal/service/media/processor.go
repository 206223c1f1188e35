// Package media validates and normalises uploaded images before they are
// stored.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	analysisSvc "figmant/internal/domain/services/analysis"
)

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Processor checks type, size and dimensions, then re-encodes PNG and JPEG
// images so embedded metadata is dropped. GIF and WebP pass through.
type Processor struct {
	maxBytes     int
	maxDimension int
}

// NewProcessor creates an image processor with the given limits
func NewProcessor(maxBytes, maxDimension int) *Processor {
	return &Processor{maxBytes: maxBytes, maxDimension: maxDimension}
}

// Process returns a user-facing error when the image is rejected
func (p *Processor) Process(ctx context.Context, name string, data []byte) (*analysisSvc.ProcessedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	if p.maxBytes > 0 && len(data) > p.maxBytes {
		return nil, fmt.Errorf("%s is larger than %d MB", name, p.maxBytes>>20)
	}

	mtype := mimetype.Detect(data)
	contentType := mtype.String()
	if !allowedTypes[contentType] {
		return nil, fmt.Errorf("%s is not a supported image type (%s)", name, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s could not be read as an image", name)
	}
	if p.maxDimension > 0 && (cfg.Width > p.maxDimension || cfg.Height > p.maxDimension) {
		return nil, fmt.Errorf("%s is %dx%d, larger than %dpx", name, cfg.Width, cfg.Height, p.maxDimension)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &analysisSvc.ProcessedImage{
		Data:        data,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}

	switch contentType {
	case "image/png", "image/jpeg":
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s could not be decoded", name)
		}
		var buf bytes.Buffer
		if contentType == "image/png" {
			err = png.Encode(&buf, img)
		} else {
			err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
		}
		if err != nil {
			return nil, fmt.Errorf("re-encode %s: %w", name, err)
		}
		out.Data = buf.Bytes()
	}

	return out, nil
}

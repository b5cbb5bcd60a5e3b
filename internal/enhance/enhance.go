// Package enhance implements the image enhancer stage adapter: a pure-Go
// filter chain preparing rasterized pages for OCR.
package enhance

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// Processor applies the enabled cleanup filters to one page image. The
// filter order is fixed: grayscale, contrast stretch, deskew, denoise,
// threshold, then the optional upscale.
type Processor struct{}

// NewProcessor creates an image enhancer.
func NewProcessor() *Processor {
	return &Processor{}
}

// Enhance runs the filter chain over a PNG page image and returns the
// transformed PNG.
func (p *Processor) Enhance(ctx context.Context, data []byte, opts job.PreprocessOptions) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, stage.NewTerminal(job.StagePreprocessing, "page image could not be decoded", err)
	}

	img := toGray(src)

	if opts.ApplyCLAHE {
		img = stretchContrast(img)
	}
	if opts.DeskewEnabled {
		img = deskew(img)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.NoiseRemoval {
		img = medianDenoise(img)
	}
	if opts.AdaptiveThreshold {
		img = otsuThreshold(img)
	}

	var out image.Image = img
	if opts.SuperResolution {
		out = upscale(img, 2)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, stage.NewTransient(job.StagePreprocessing, "enhanced page could not be encoded", err)
	}
	return buf.Bytes(), nil
}

// Package render implements the page renderer stage adapter on MuPDF.
package render

import (
	"bytes"
	"context"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// FitzRenderer rasterizes PDF bytes with go-fitz. Corrupt, encrypted, and
// empty documents are terminal failures; the coordinator does no format
// validation of its own.
type FitzRenderer struct{}

// NewFitzRenderer creates a MuPDF-backed renderer.
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// Render converts the document into ordered PNG page images at opts.DPI.
func (r *FitzRenderer) Render(ctx context.Context, pdf []byte, opts job.Options) ([]stage.Page, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, stage.NewTerminal(job.StageConverting, "document could not be opened", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, stage.NewTerminal(job.StageConverting, "document has no pages", nil)
	}

	pages := make([]stage.Page, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(n, float64(opts.DPI))
		if err != nil {
			return nil, stage.NewTerminal(job.StageConverting, "page could not be rasterized", err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, stage.NewTransient(job.StageConverting, "page could not be encoded", err)
		}

		bounds := img.Bounds()
		pages = append(pages, stage.Page{
			Number: n + 1,
			PNG:    buf.Bytes(),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return pages, nil
}

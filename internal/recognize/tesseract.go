// Package recognize implements the text recognizer stage adapters: a local
// Tesseract engine, a remote PaddleOCR client, and an ensemble composite.
package recognize

import (
	"context"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// Tesseract recognizes text with a local Tesseract installation via
// gosseract. A fresh client per call keeps the adapter stateless and safe
// for the coordinator's retry logic.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract-backed recognizer for the given
// languages (Korean plus Latin fallback by default).
func NewTesseract(languages []string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"kor", "eng"}
	}
	return &Tesseract{languages: languages}
}

// Name returns the engine selector this adapter serves.
func (t *Tesseract) Name() string { return string(job.EngineTesseract) }

// Recognize runs OCR over one PNG page image.
func (t *Tesseract) Recognize(ctx context.Context, png []byte, opts job.Options) (stage.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return stage.Recognition{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "language data unavailable", err)
	}
	if opts.DPI > 0 {
		if err := client.SetVariable("user_defined_dpi", strconv.Itoa(opts.DPI)); err != nil {
			return stage.Recognition{}, stage.NewTransient(job.StageRecognizing, "engine configuration rejected", err)
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "page image rejected by engine", err)
	}

	text, err := client.Text()
	if err != nil {
		return stage.Recognition{}, stage.NewTransient(job.StageRecognizing, "recognition failed", err)
	}

	return stage.Recognition{
		Text:       text,
		Confidence: wordConfidence(client),
		Engine:     t.Name(),
	}, nil
}

// wordConfidence averages per-word confidences into a 0..1 score. Tesseract
// reports 0..100 per bounding box.
func wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100
}

// Package stage defines the shared contract between the pipeline coordinator
// and the four stage adapters. Adapters translate every underlying library
// failure into a stage.Error carrying a transient/terminal class; the
// coordinator never handles a library-specific error type directly.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/k-ocr/web-corrector/internal/job"
)

// Class partitions adapter failures for the coordinator's retry policy.
type Class string

const (
	// Transient failures (timeouts, resource exhaustion) are retried
	// in-place up to the configured bound.
	Transient Class = "transient"
	// Terminal failures (corrupt input, unsupported content) fail the job.
	Terminal Class = "terminal"
)

// Error is the only failure type adapters may return.
type Error struct {
	Class Class
	Stage job.Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s stage %s: %s: %v", e.Class, e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s stage %s: %s", e.Class, e.Stage, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable stage failure.
func NewTransient(s job.Stage, msg string, err error) *Error {
	return &Error{Class: Transient, Stage: s, Msg: msg, Err: err}
}

// NewTerminal wraps err as an unrecoverable stage failure.
func NewTerminal(s job.Stage, msg string, err error) *Error {
	return &Error{Class: Terminal, Stage: s, Msg: msg, Err: err}
}

// Classify extracts the failure class from an error chain. Unclassified
// errors and context deadlines count as transient so the retry bound, not a
// stray wrapper, decides the job's fate; context cancellation is terminal
// for the attempt (the run loop translates it to CANCELLED, not FAILED).
func Classify(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, context.Canceled) {
		return Terminal
	}
	return Transient
}

// IsTerminal reports whether the error chain carries a terminal stage error.
func IsTerminal(err error) bool { return Classify(err) == Terminal }

// Page is one rendered page image, ordered by page number (1-based).
type Page struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// Recognition is the output of one OCR pass over one page image.
type Recognition struct {
	Text       string
	Confidence float64 // 0..1
	Engine     string
}

// Correction is the output of the language corrector for one page's text.
type Correction struct {
	Text    string
	Changes int
}

// Renderer turns an uploaded PDF into an ordered sequence of page images.
type Renderer interface {
	Render(ctx context.Context, pdf []byte, opts job.Options) ([]Page, error)
}

// Enhancer applies the image-cleanup filters to a single page image.
type Enhancer interface {
	Enhance(ctx context.Context, png []byte, opts job.PreprocessOptions) ([]byte, error)
}

// Recognizer runs OCR over a single page image.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, png []byte, opts job.Options) (Recognition, error)
}

// Corrector applies Korean-language correction to recognized text.
type Corrector interface {
	Correct(ctx context.Context, text string, opts job.CorrectionOptions) (Correction, error)
}

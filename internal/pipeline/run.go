package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// errCancelled signals that the run observed cancel_requested at a page or
// stage boundary.
var errCancelled = errors.New("cancellation observed")

func (c *Coordinator) run(id uuid.UUID) {
	ctx := c.baseCtx
	log := c.log.WithJob(id.String())
	started := time.Now()

	rec, err := c.repo.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("job vanished before execution")
		return
	}

	err = c.execute(ctx, rec, log)
	switch {
	case err == nil:
		log.Info().Dur("elapsed", time.Since(started)).Msg("job completed")
	case errors.Is(err, errCancelled):
		c.finishCancelled(id, log)
	case errors.Is(err, context.Canceled):
		// Shutdown, not a job fault. The record stays where it was and the
		// TTL sweep eventually reclaims it.
		log.Warn().Msg("job interrupted by shutdown")
	default:
		c.finishFailed(id, err, log)
	}
}

// execute drives the record from CONVERTING to COMPLETED. It returns
// errCancelled when cancellation is observed, a context error on shutdown,
// and a stage error otherwise. On success the record is already COMPLETED.
func (c *Coordinator) execute(ctx context.Context, rec *job.Record, log *observability.Logger) error {
	owner := rec.OwnerToken
	opts := rec.Options
	id := rec.ID

	src, err := c.blobs.Get(ctx, rec.SourceBlobRef, owner)
	if err != nil {
		return stage.NewTerminal(job.StageConverting, "uploaded document is no longer available", err)
	}

	// CONVERTING: rasterize every page, one blob per page image.
	var pages []stage.Page
	err = c.withRetry(ctx, func(callCtx context.Context) error {
		var rerr error
		pages, rerr = c.adapters.Renderer.Render(callCtx, src.Data, opts)
		return rerr
	})
	if err != nil {
		return err
	}
	total := len(pages)
	log.Info().Int("pages", total).Msg("document rendered")

	pageRefs := make([]string, total)
	for i, p := range pages {
		ref, err := c.blobs.Save(ctx, owner, p.PNG, "image/png")
		if err != nil {
			return stage.NewTransient(job.StageConverting, "temporary storage unavailable", err)
		}
		pageRefs[i] = ref
		cancelled, err := c.checkpoint(ctx, id, job.StageConverting, i+1, total, ref)
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}
	}

	// PREPROCESSING: per-page filter chain.
	if cancelled, err := c.advance(ctx, id, job.StagePreprocessing, nil); err != nil {
		return err
	} else if cancelled {
		return errCancelled
	}
	enhancedRefs := make([]string, total)
	for i, ref := range pageRefs {
		in, err := c.blobs.Get(ctx, ref, owner)
		if err != nil {
			return stage.NewTerminal(job.StagePreprocessing, "page image is no longer available", err)
		}
		var out []byte
		err = c.withRetry(ctx, func(callCtx context.Context) error {
			var eerr error
			out, eerr = c.adapters.Enhancer.Enhance(callCtx, in.Data, opts.Preprocess)
			return eerr
		})
		if err != nil {
			return err
		}
		eref, err := c.blobs.Save(ctx, owner, out, "image/png")
		if err != nil {
			return stage.NewTransient(job.StagePreprocessing, "temporary storage unavailable", err)
		}
		enhancedRefs[i] = eref
		cancelled, err := c.checkpoint(ctx, id, job.StagePreprocessing, i+1, total, eref)
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}
	}

	// RECOGNIZING: OCR per page through the selected engine.
	recognizer, ok := c.adapters.Recognizers[opts.Engine]
	if !ok {
		return stage.NewTerminal(job.StageRecognizing,
			fmt.Sprintf("ocr engine %q is not available", opts.Engine), nil)
	}
	if cancelled, err := c.advance(ctx, id, job.StageRecognizing, nil); err != nil {
		return err
	} else if cancelled {
		return errCancelled
	}
	textRefs := make([]string, total)
	var confidenceSum float64
	for i, ref := range enhancedRefs {
		in, err := c.blobs.Get(ctx, ref, owner)
		if err != nil {
			return stage.NewTerminal(job.StageRecognizing, "page image is no longer available", err)
		}
		var rg stage.Recognition
		err = c.withRetry(ctx, func(callCtx context.Context) error {
			var rerr error
			rg, rerr = recognizer.Recognize(callCtx, in.Data, opts)
			return rerr
		})
		if err != nil {
			return err
		}
		confidenceSum += rg.Confidence
		tref, err := c.blobs.Save(ctx, owner, []byte(rg.Text), "text/plain; charset=utf-8")
		if err != nil {
			return stage.NewTransient(job.StageRecognizing, "temporary storage unavailable", err)
		}
		textRefs[i] = tref
		cancelled, err := c.checkpoint(ctx, id, job.StageRecognizing, i+1, total, tref)
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}
	}
	avgConfidence := 0.0
	if total > 0 {
		avgConfidence = confidenceSum / float64(total)
	}

	// CORRECTING: per-page language correction. When correction is disabled
	// the stage is still walked so progress banding stays uniform.
	cancelled, err := c.advance(ctx, id, job.StageCorrecting, func(r *job.Record) {
		r.AvgConfidence = avgConfidence
	})
	if err != nil {
		return err
	}
	if cancelled {
		return errCancelled
	}
	corrected := make([]string, total)
	for i, ref := range textRefs {
		in, err := c.blobs.Get(ctx, ref, owner)
		if err != nil {
			return stage.NewTerminal(job.StageCorrecting, "recognized text is no longer available", err)
		}
		text := string(in.Data)
		if opts.Correction.Enabled {
			var cr stage.Correction
			err = c.withRetry(ctx, func(callCtx context.Context) error {
				var cerr error
				cr, cerr = c.adapters.Corrector.Correct(callCtx, text, opts.Correction)
				return cerr
			})
			if err != nil {
				return err
			}
			text = cr.Text
		}
		corrected[i] = text
		cancelled, err := c.checkpoint(ctx, id, job.StageCorrecting, i+1, total, "")
		if err != nil {
			return err
		}
		if cancelled {
			return errCancelled
		}
	}

	// Finalize: pages joined in order, one result blob, COMPLETED at 100.
	final := strings.Join(corrected, "\n\n")
	resultRef, err := c.blobs.Save(ctx, owner, []byte(final), "text/plain; charset=utf-8")
	if err != nil {
		return stage.NewTransient(job.StageCorrecting, "temporary storage unavailable", err)
	}
	done, err := c.repo.Update(ctx, id, func(r *job.Record) error {
		return r.Complete(resultRef)
	})
	if err != nil {
		return err
	}

	// Page-level intermediates are dead weight once the result exists; the
	// source and result blobs stay until the TTL sweep.
	if len(done.IntermediateBlobs) > 0 {
		if err := c.blobs.DeleteOwned(ctx, owner, done.IntermediateBlobs); err != nil {
			log.Warn().Err(err).Msg("intermediate blob release incomplete")
		}
	}
	return nil
}

// checkpoint persists one page's worth of progress, the blob it produced and
// the page total in a single atomic write, and reports whether cancellation
// has been requested.
func (c *Coordinator) checkpoint(ctx context.Context, id uuid.UUID, s job.Stage, done, total int, blobRef string) (bool, error) {
	rec, err := c.repo.Update(ctx, id, func(r *job.Record) error {
		if total > 0 {
			r.TotalPages = total
		}
		if blobRef != "" {
			r.TrackBlob(blobRef)
		}
		return r.SetProgress(job.BandProgress(s, done, total))
	})
	if err != nil {
		return false, err
	}
	return rec.CancelRequested, nil
}

// advance moves the record to the next stage (optionally mutating extra
// fields in the same write) and reports whether cancellation was requested.
func (c *Coordinator) advance(ctx context.Context, id uuid.UUID, next job.Stage, extra func(*job.Record)) (bool, error) {
	rec, err := c.repo.Update(ctx, id, func(r *job.Record) error {
		if extra != nil {
			extra(r)
		}
		return r.AdvanceTo(next)
	})
	if err != nil {
		return false, err
	}
	return rec.CancelRequested, nil
}

// withRetry runs op with the per-call stage timeout, retrying transient
// failures with doubling backoff up to the configured bound. Terminal
// failures and parent-context cancellation return immediately; a transient
// failure that survives every retry escalates as-is.
func (c *Coordinator) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
		err := op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if stage.IsTerminal(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Coordinator) finishFailed(id uuid.UUID, cause error, log *observability.Logger) {
	// The base context may already be gone on shutdown; teardown still has
	// to land, so it runs on a short independent deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary := redact(cause)
	rec, err := c.repo.Update(ctx, id, func(r *job.Record) error {
		return r.Fail(summary)
	})
	if err != nil {
		log.Error().Err(err).Msg("could not record job failure")
		return
	}
	// The upload is kept: the owner can retry from the same source blob
	// until it expires on its own.
	c.releaseBlobs(ctx, rec, rec.TeardownBlobs())
	log.Error().Err(cause).Str("summary", summary).Msg("job failed")
}

func (c *Coordinator) finishCancelled(id uuid.UUID, log *observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := c.repo.Update(ctx, id, func(r *job.Record) error {
		return r.MarkCancelled()
	})
	if err != nil {
		log.Error().Err(err).Msg("could not record job cancellation")
		return
	}
	c.releaseBlobs(ctx, rec, rec.TeardownBlobs())
	log.Info().Msg("job cancelled")
}

// redact turns an internal failure into the client-safe summary stored on
// the record. Raw library errors never reach the client.
func redact(err error) string {
	var se *stage.Error
	if errors.As(err, &se) {
		return fmt.Sprintf("Processing failed while %s: %s.",
			strings.ToLower(se.Stage.Label()), se.Msg)
	}
	return "Processing failed due to an internal error."
}

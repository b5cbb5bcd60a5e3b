package pipeline

import (
	"context"
	"time"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

// Sweeper reclaims expired state: job records past their TTL (with cascade
// blob release) and orphaned temp store entries.
type Sweeper struct {
	repo     job.Repository
	blobs    tempstore.Store
	interval time.Duration
	log      *observability.Logger
}

// NewSweeper creates a sweeper ticking at the given interval.
func NewSweeper(repo job.Repository, blobs tempstore.Store, interval time.Duration, log *observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if log == nil {
		log = observability.Nop()
	}
	return &Sweeper{repo: repo, blobs: blobs, interval: interval, log: log}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.Sweep(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sweep pass incomplete")
			}
		}
	}
}

// Sweep performs one pass and reports how many job records and blobs were
// removed. Expired jobs release every blob they own before the blob sweep
// prunes whatever expired on its own clock.
func (s *Sweeper) Sweep(ctx context.Context) (jobsReaped, blobsSwept int, err error) {
	reaped, err := s.repo.ReapExpired(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}
	for _, rec := range reaped {
		if derr := s.blobs.DeleteOwned(ctx, rec.OwnerToken, rec.OwnedBlobs()); derr != nil {
			s.log.WithJob(rec.ID.String()).Warn().Err(derr).Msg("cascade blob release incomplete")
		}
	}

	blobsSwept, err = s.blobs.SweepExpired(ctx)
	if err != nil {
		return len(reaped), 0, err
	}

	if len(reaped) > 0 || blobsSwept > 0 {
		s.log.Info().
			Int("jobs_reaped", len(reaped)).
			Int("blobs_swept", blobsSwept).
			Msg("expiry sweep")
	}
	return len(reaped), blobsSwept, nil
}

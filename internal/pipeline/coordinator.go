// Package pipeline implements the coordinator that drives a job through the
// four processing stages, plus the sweeper that expires leftover state.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/stage"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

// Adapters bundles the stage implementations the coordinator drives. The
// recognizer registry is frozen at construction; a job created with an engine
// that has no registered recognizer fails terminally when recognition starts.
type Adapters struct {
	Renderer    stage.Renderer
	Enhancer    stage.Enhancer
	Recognizers map[job.EngineSelector]stage.Recognizer
	Corrector   stage.Corrector
}

// Config holds the coordinator's execution policy.
type Config struct {
	// MaxConcurrentJobs bounds how many jobs run their stages at once.
	MaxConcurrentJobs int
	// StageTimeout bounds every single adapter call.
	StageTimeout time.Duration
	// MaxRetries is the number of in-place retries for a transient stage
	// error before it escalates to a job failure.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// JobTTL is how long a job record stays queryable.
	JobTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 2
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 24 * time.Hour
	}
}

// Coordinator owns job execution. It is the only writer of job records past
// creation; the status service reads the same repository concurrently.
type Coordinator struct {
	repo     job.Repository
	blobs    tempstore.Store
	adapters Adapters
	cfg      Config
	log      *observability.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator. All four adapter slots must be
// filled and at least one recognizer registered.
func NewCoordinator(repo job.Repository, blobs tempstore.Store, adapters Adapters, cfg Config, log *observability.Logger) (*Coordinator, error) {
	if adapters.Renderer == nil || adapters.Enhancer == nil || adapters.Corrector == nil {
		return nil, errors.New("pipeline: renderer, enhancer and corrector adapters are required")
	}
	if len(adapters.Recognizers) == 0 {
		return nil, errors.New("pipeline: at least one recognizer must be registered")
	}
	if log == nil {
		log = observability.Nop()
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		repo:     repo,
		blobs:    blobs,
		adapters: adapters,
		cfg:      cfg,
		log:      log,
		baseCtx:  ctx,
		stop:     cancel,
		sem:      make(chan struct{}, cfg.MaxConcurrentJobs),
	}, nil
}

// CreateJob validates the client-supplied options document, verifies the
// uploaded source blob, and persists a PENDING record. A ValidationError is
// returned synchronously and no record is created.
func (c *Coordinator) CreateJob(ctx context.Context, owner, sourceBlobRef string, rawOptions []byte) (*job.Record, error) {
	opts, err := job.ParseOptionsJSON(rawOptions)
	if err != nil {
		return nil, err
	}

	if _, err := c.blobs.Get(ctx, sourceBlobRef, owner); err != nil {
		return nil, err
	}

	rec := job.NewRecord(owner, sourceBlobRef, opts, c.cfg.JobTTL)
	if err := c.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	c.log.WithJob(rec.ID.String()).Info().
		Str("engine", string(opts.Engine)).
		Int("dpi", opts.DPI).
		Int("estimated_secs", rec.EstimatedSecs).
		Msg("job created")
	return rec, nil
}

// StartBatch creates and starts one job per uploaded document, all sharing
// the same options. Creation is all-or-nothing: every upload is verified
// before the first record is written, so a bad reference fails the whole
// batch without leaving partial jobs behind. The jobs then run independently
// and are polled through the batch status view.
func (c *Coordinator) StartBatch(ctx context.Context, owner string, sourceBlobRefs []string, rawOptions []byte) ([]*job.Record, error) {
	if len(sourceBlobRefs) == 0 {
		return nil, &job.ValidationError{Msg: "at least one upload is required"}
	}

	opts, err := job.ParseOptionsJSON(rawOptions)
	if err != nil {
		return nil, err
	}
	for _, ref := range sourceBlobRefs {
		if _, err := c.blobs.Get(ctx, ref, owner); err != nil {
			return nil, err
		}
	}

	recs := make([]*job.Record, 0, len(sourceBlobRefs))
	for _, ref := range sourceBlobRefs {
		rec := job.NewRecord(owner, ref, opts, c.cfg.JobTTL)
		if err := c.repo.Create(ctx, rec); err != nil {
			return recs, err
		}
		recs = append(recs, rec)
		if err := c.Start(ctx, rec.ID, owner); err != nil {
			return recs, err
		}
	}

	c.log.WithOwner(owner).Info().
		Int("jobs", len(recs)).
		Str("engine", string(opts.Engine)).
		Msg("batch started")
	return recs, nil
}

// Start transitions a PENDING job to CONVERTING and enqueues its background
// run. It returns once the transition is durable; execution is asynchronous.
func (c *Coordinator) Start(ctx context.Context, jobID uuid.UUID, owner string) error {
	_, err := c.repo.Update(ctx, jobID, func(r *job.Record) error {
		if r.OwnerToken != owner {
			return job.ErrForbidden
		}
		if r.Stage != job.StagePending {
			return job.ErrAlreadyStarted
		}
		return r.AdvanceTo(job.StageConverting)
	})
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-c.baseCtx.Done():
			return
		}
		c.run(jobID)
	}()
	return nil
}

// Cancel requests cooperative cancellation. A job that never started is
// cancelled immediately; a running job finishes its current adapter call and
// stops at the next page or stage boundary.
func (c *Coordinator) Cancel(ctx context.Context, jobID uuid.UUID, owner string) error {
	rec, err := c.repo.Update(ctx, jobID, func(r *job.Record) error {
		if r.OwnerToken != owner {
			return job.ErrForbidden
		}
		if r.Terminal() {
			return job.ErrInvalidState
		}
		if r.Stage == job.StagePending {
			return r.MarkCancelled()
		}
		r.CancelRequested = true
		return nil
	})
	if err != nil {
		return err
	}

	if rec.Stage == job.StageCancelled {
		c.releaseBlobs(ctx, rec, rec.TeardownBlobs())
	}
	c.log.WithJob(jobID.String()).Info().Msg("cancellation requested")
	return nil
}

// Delete removes a terminal job and releases every blob it owns.
func (c *Coordinator) Delete(ctx context.Context, jobID uuid.UUID, owner string) error {
	rec, err := c.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.OwnerToken != owner {
		return job.ErrForbidden
	}
	if !rec.Terminal() {
		return job.ErrInvalidState
	}

	c.releaseBlobs(ctx, rec, rec.OwnedBlobs())
	return c.repo.Delete(ctx, jobID)
}

// Close stops accepting work and waits for in-flight jobs to notice the
// shutdown. Jobs interrupted mid-stage stay non-terminal; the sweeper reaps
// them when their TTL passes.
func (c *Coordinator) Close() error {
	c.stop()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) releaseBlobs(ctx context.Context, rec *job.Record, refs []string) {
	if err := c.blobs.DeleteOwned(ctx, rec.OwnerToken, refs); err != nil {
		c.log.WithJob(rec.ID.String()).Warn().Err(err).Msg("blob release incomplete")
	}
}

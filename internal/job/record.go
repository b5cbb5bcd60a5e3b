package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors for job operations.
var (
	// ErrNotFound indicates the job does not exist or has expired.
	ErrNotFound = errors.New("job not found")
	// ErrForbidden indicates the requester does not own the job.
	ErrForbidden = errors.New("job access denied")
	// ErrAlreadyStarted indicates Start was called on a job past PENDING.
	ErrAlreadyStarted = errors.New("job already started")
	// ErrInvalidState indicates an operation not allowed in the current stage.
	ErrInvalidState = errors.New("operation not allowed in current job state")
)

// Record is one user's end-to-end processing request for a single uploaded
// document. It is the only mutable state shared between the coordinator
// (writer) and the status service (reader); all mutation goes through
// Repository.Update so stage and progress are always observed as a pair.
type Record struct {
	ID            uuid.UUID `json:"id"`
	OwnerToken    string    `json:"owner_token"`
	SourceBlobRef string    `json:"source_blob_ref"`

	Stage           Stage `json:"stage"`
	ProgressPercent int   `json:"progress_percent"`
	CancelRequested bool  `json:"cancel_requested"`

	// Options are frozen at creation so one job produces one describable
	// result regardless of later settings changes.
	Options Options `json:"options"`

	TotalPages    int     `json:"total_pages"`
	AvgConfidence float64 `json:"avg_confidence"`
	EstimatedSecs int     `json:"estimated_secs"`

	ResultBlobRef string `json:"result_blob_ref,omitempty"`
	ErrorSummary  string `json:"error_summary,omitempty"`

	// IntermediateBlobs tracks every temp store entry the job owns besides
	// the source, so teardown can cascade.
	IntermediateBlobs []string `json:"intermediate_blobs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecord creates a PENDING job record for an uploaded source blob.
func NewRecord(owner, sourceBlobRef string, opts Options, ttl time.Duration) *Record {
	now := time.Now()
	return &Record{
		ID:            uuid.New(),
		OwnerToken:    owner,
		SourceBlobRef: sourceBlobRef,
		Stage:         StagePending,
		Options:       opts,
		EstimatedSecs: opts.EstimateSeconds(),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

// Terminal reports whether the record is in a terminal stage.
func (r *Record) Terminal() bool { return r.Stage.Terminal() }

// AdvanceTo moves the record forward along the state graph and pins progress
// to the new stage's band start. Backward or skipping transitions are
// rejected.
func (r *Record) AdvanceTo(next Stage) error {
	if !r.Stage.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Stage, next)
	}
	r.Stage = next
	if p := BandStart(next); p > r.ProgressPercent {
		r.ProgressPercent = p
	}
	r.UpdatedAt = time.Now()
	return nil
}

// SetProgress updates progress within the current run. Progress is
// monotonically non-decreasing and frozen once the record is terminal.
func (r *Record) SetProgress(percent int) error {
	if r.Terminal() {
		return fmt.Errorf("%w: progress update on terminal job", ErrInvalidState)
	}
	if percent < r.ProgressPercent {
		// Never move backwards; a stale writer loses.
		return nil
	}
	if percent > 100 {
		percent = 100
	}
	r.ProgressPercent = percent
	r.UpdatedAt = time.Now()
	return nil
}

// Complete transitions the record to COMPLETED with the final artifact set.
func (r *Record) Complete(resultBlobRef string) error {
	if err := r.AdvanceTo(StageCompleted); err != nil {
		return err
	}
	r.ResultBlobRef = resultBlobRef
	r.ProgressPercent = 100
	r.ErrorSummary = ""
	return nil
}

// Fail transitions the record to FAILED with a redacted error summary. The
// summary must already be client-safe; raw library errors never land here.
func (r *Record) Fail(summary string) error {
	if err := r.AdvanceTo(StageFailed); err != nil {
		return err
	}
	r.ErrorSummary = summary
	r.ResultBlobRef = ""
	return nil
}

// MarkCancelled transitions the record to CANCELLED.
func (r *Record) MarkCancelled() error {
	if err := r.AdvanceTo(StageCancelled); err != nil {
		return err
	}
	r.ResultBlobRef = ""
	r.ErrorSummary = ""
	return nil
}

// TrackBlob records an intermediate temp store entry owned by the job.
func (r *Record) TrackBlob(blobID string) {
	for _, id := range r.IntermediateBlobs {
		if id == blobID {
			return
		}
	}
	r.IntermediateBlobs = append(r.IntermediateBlobs, blobID)
}

// OwnedBlobs returns every temp store entry the job references, source and
// result included. Used when the job itself goes away (delete, TTL reap).
func (r *Record) OwnedBlobs() []string {
	blobs := make([]string, 0, len(r.IntermediateBlobs)+2)
	if r.SourceBlobRef != "" {
		blobs = append(blobs, r.SourceBlobRef)
	}
	blobs = append(blobs, r.IntermediateBlobs...)
	if r.ResultBlobRef != "" {
		blobs = append(blobs, r.ResultBlobRef)
	}
	return blobs
}

// TeardownBlobs returns the entries to release when a run ends in FAILED or
// CANCELLED: intermediates and any result, but never the source. The upload
// outlives the job so the owner can start a fresh job from the same blob
// until its own TTL passes.
func (r *Record) TeardownBlobs() []string {
	blobs := make([]string, 0, len(r.IntermediateBlobs)+1)
	blobs = append(blobs, r.IntermediateBlobs...)
	if r.ResultBlobRef != "" {
		blobs = append(blobs, r.ResultBlobRef)
	}
	return blobs
}

// Expired reports whether the record's TTL has passed.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	dup := *r
	dup.IntermediateBlobs = append([]string(nil), r.IntermediateBlobs...)
	return &dup
}

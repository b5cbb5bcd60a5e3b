// Package status implements the read-only query side of job processing:
// polling views for clients and result download resolution.
package status

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

// View is the client-facing snapshot of one job. Fields that would leak
// another phase's data are omitted: the download handle exists only once the
// job completed, the error summary only once it failed.
type View struct {
	JobID           string  `json:"job_id"`
	Status          string  `json:"status"`
	ProgressPercent int     `json:"progress_percent"`
	CurrentStep     string  `json:"current_step"`
	TotalPages      int     `json:"total_pages,omitempty"`
	EstimatedSecs   int     `json:"estimated_secs,omitempty"`
	AvgConfidence   float64 `json:"avg_confidence,omitempty"`
	DownloadHandle  string  `json:"download_handle,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Service answers status queries against the same repository the coordinator
// writes. Reads are safe under concurrent processing because every write
// goes through the repository's atomic update.
type Service struct {
	repo  job.Repository
	blobs tempstore.Store
}

// NewService creates a status query service.
func NewService(repo job.Repository, blobs tempstore.Store) *Service {
	return &Service{repo: repo, blobs: blobs}
}

// GetStatus returns the polling view for a job. Unknown and expired jobs are
// job.ErrNotFound; a requester that does not own the job gets
// job.ErrForbidden (the HTTP layer collapses both to the same answer so job
// IDs cannot be probed).
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID, requesterToken string) (*View, error) {
	rec, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerToken != requesterToken {
		return nil, job.ErrForbidden
	}

	v := &View{
		JobID:           rec.ID.String(),
		Status:          string(rec.Stage),
		ProgressPercent: rec.ProgressPercent,
		CurrentStep:     rec.Stage.Label(),
		TotalPages:      rec.TotalPages,
	}

	switch rec.Stage {
	case job.StageCompleted:
		v.DownloadHandle = rec.ResultBlobRef
		v.AvgConfidence = rec.AvgConfidence
	case job.StageFailed:
		v.Error = rec.ErrorSummary
	case job.StageCancelled:
		// Nothing extra: no handle, no error.
	default:
		v.EstimatedSecs = rec.EstimatedSecs
	}
	return v, nil
}

// BatchView aggregates the polling views of a set of jobs submitted
// together. OverallProgress is the mean of the per-job percentages, so a
// batch reads 100 only when every job has finished.
type BatchView struct {
	Jobs            []*View `json:"jobs"`
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Cancelled       int     `json:"cancelled"`
	OverallProgress int     `json:"overall_progress"`
}

// GetBatchStatus returns the aggregate view for the given job IDs. Jobs that
// do not exist, have expired, or belong to another session appear with
// status "not_found" instead of failing the whole query, so one expired job
// does not blind the client to the rest of its batch.
func (s *Service) GetBatchStatus(ctx context.Context, jobIDs []uuid.UUID, requesterToken string) (*BatchView, error) {
	bv := &BatchView{
		Jobs:  make([]*View, 0, len(jobIDs)),
		Total: len(jobIDs),
	}

	var progressSum int
	for _, id := range jobIDs {
		v, err := s.GetStatus(ctx, id, requesterToken)
		switch {
		case errors.Is(err, job.ErrNotFound), errors.Is(err, job.ErrForbidden):
			bv.Jobs = append(bv.Jobs, &View{JobID: id.String(), Status: "not_found"})
			continue
		case err != nil:
			return nil, err
		}
		bv.Jobs = append(bv.Jobs, v)
		progressSum += v.ProgressPercent

		switch job.Stage(v.Status) {
		case job.StageCompleted:
			bv.Completed++
		case job.StageFailed:
			bv.Failed++
		case job.StageCancelled:
			bv.Cancelled++
		default:
			bv.Active++
		}
	}
	if bv.Total > 0 {
		bv.OverallProgress = progressSum / bv.Total
	}
	return bv, nil
}

// ResolveDownload returns the result blob for a completed job, enforcing
// the same ownership rules as GetStatus.
func (s *Service) ResolveDownload(ctx context.Context, jobID uuid.UUID, requesterToken string) (*tempstore.Entry, error) {
	rec, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerToken != requesterToken {
		return nil, job.ErrForbidden
	}
	if rec.Stage != job.StageCompleted || rec.ResultBlobRef == "" {
		return nil, job.ErrInvalidState
	}
	return s.blobs.Get(ctx, rec.ResultBlobRef, requesterToken)
}

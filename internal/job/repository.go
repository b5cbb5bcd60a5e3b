package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists job records. Update is the single mutation funnel: it
// applies the mutator under the store's concurrency control, so stage and
// progress are always written together and a reader never observes a torn
// pair.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	// Get returns a copy of the record. ErrNotFound covers unknown and
	// expired IDs alike.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update applies fn to the stored record atomically. If fn returns an
	// error the record is left untouched and the error is propagated.
	Update(ctx context.Context, id uuid.UUID, fn func(*Record) error) (*Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ReapExpired removes every record whose TTL passed before now and
	// returns the removed records so the caller can cascade-release the
	// temp store blobs they own.
	ReapExpired(ctx context.Context, now time.Time) ([]*Record, error)
	Close() error
}

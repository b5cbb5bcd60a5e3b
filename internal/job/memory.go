package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository with an in-process map. Used in
// development and tests; the sqlite driver is the durable choice.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemoryRepository creates an in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]*Record)}
}

// Create stores a new record.
func (r *MemoryRepository) Create(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("job %s already exists", rec.ID)
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record.
func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update applies fn to the stored record under the repository lock.
func (r *MemoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Record) error) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	work := rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	r.records[id] = work
	return work.Clone(), nil
}

// Delete removes a record. Idempotent.
func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// ReapExpired removes and returns records whose TTL passed before now.
func (r *MemoryRepository) ReapExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []*Record
	for id, rec := range r.records {
		if rec.Expired(now) {
			reaped = append(reaped, rec.Clone())
			delete(r.records, id)
		}
	}
	return reaped, nil
}

// Len reports how many records are stored. Test helper.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Close is a no-op for the memory repository.
func (r *MemoryRepository) Close() error { return nil }

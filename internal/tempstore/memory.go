package tempstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Used in development
// and tests; the redis driver is the production choice.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory temp store with the given entry TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Save stores a blob scoped to the owner.
func (s *MemoryStore) Save(ctx context.Context, owner string, data []byte, contentType string) (string, error) {
	id := BlobID(owner, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok && !existing.Expired(s.now()) {
		// Write-once: same owner and content resolve to the same entry.
		return id, nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	now := s.now()
	s.entries[id] = &Entry{
		BlobID:      id,
		OwnerToken:  owner,
		Data:        buf,
		ContentType: contentType,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	return id, nil
}

// Get retrieves a blob, enforcing owner scoping and expiry.
func (s *MemoryStore) Get(ctx context.Context, blobID, owner string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[blobID]
	if !ok || entry.Expired(s.now()) {
		return nil, ErrNotFound
	}
	if entry.OwnerToken != owner {
		return nil, ErrForbidden
	}
	return entry, nil
}

// Delete removes a blob. Idempotent for absent blobs.
func (s *MemoryStore) Delete(ctx context.Context, blobID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[blobID]
	if !ok {
		return nil
	}
	if entry.OwnerToken != owner {
		return ErrForbidden
	}
	delete(s.entries, blobID)
	return nil
}

// DeleteOwned removes a batch of blobs belonging to the owner.
func (s *MemoryStore) DeleteOwned(ctx context.Context, owner string, blobIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range blobIDs {
		entry, ok := s.entries[id]
		if !ok || entry.OwnerToken != owner {
			continue
		}
		delete(s.entries, id)
	}
	return nil
}

// SweepExpired deletes all entries past their expiry.
func (s *MemoryStore) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of live entries. Tests only.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

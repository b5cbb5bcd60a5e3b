// Package tempstore provides owner-scoped, TTL-bounded transient blob storage.
//
// Entries are content-addressed and write-once: a blob is never mutated after
// Save, so readers only need existence and expiry to be synchronized.
package tempstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrNotFound indicates the blob does not exist or has expired.
	ErrNotFound = errors.New("blob not found")
	// ErrForbidden indicates the requester does not own the blob.
	ErrForbidden = errors.New("blob access denied")
)

// Entry is a single stored blob with its metadata.
type Entry struct {
	BlobID      string
	OwnerToken  string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the entry's TTL has passed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store is the temp store contract used by the pipeline and the API layer.
type Store interface {
	// Save stores a blob scoped to the owner and returns its content-derived ID.
	Save(ctx context.Context, owner string, data []byte, contentType string) (string, error)
	// Get retrieves a blob. Fails ErrForbidden on owner mismatch and
	// ErrNotFound when the blob is missing or expired.
	Get(ctx context.Context, blobID, owner string) (*Entry, error)
	// Delete removes a blob. Idempotent: deleting an absent blob is not an
	// error, but deleting someone else's blob is ErrForbidden.
	Delete(ctx context.Context, blobID, owner string) error
	// DeleteOwned removes a batch of blobs belonging to the owner, skipping
	// ones that are already gone.
	DeleteOwned(ctx context.Context, owner string, blobIDs []string) error
	// SweepExpired deletes all entries past their expiry and returns the
	// count removed. Safe to run concurrently with reads and writes.
	SweepExpired(ctx context.Context) (int, error)
	Close() error
}

// BlobID derives the content address for a blob. The owner token is folded
// into the hash so identical uploads by different sessions never collide on
// one entry.
func BlobID(owner string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

package tempstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id, err := s.Save(ctx, "owner-a", []byte("page bytes"), "image/png")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, err := s.Get(ctx, id, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, []byte("page bytes"), entry.Data)
	assert.Equal(t, "image/png", entry.ContentType)
	assert.Equal(t, "owner-a", entry.OwnerToken)
}

func TestMemoryStore_GetOwnerMismatch(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id, err := s.Save(ctx, "owner-a", []byte("secret"), "application/pdf")
	require.NoError(t, err)

	_, err = s.Get(ctx, id, "owner-b")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	_, err := s.Get(context.Background(), "no-such-blob", "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id, err := s.Save(ctx, "owner-a", []byte("data"), "text/plain")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id, "owner-a"))
	require.NoError(t, s.Delete(ctx, id, "owner-a")) // second delete is a no-op

	_, err = s.Get(ctx, id, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteForbiddenForNonOwner(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id, err := s.Save(ctx, "owner-a", []byte("data"), "text/plain")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, id, "owner-b"), ErrForbidden)

	// Entry must still be readable by its owner.
	_, err = s.Get(ctx, id, "owner-a")
	assert.NoError(t, err)
}

func TestMemoryStore_ContentAddressing(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id1, err := s.Save(ctx, "owner-a", []byte("same content"), "text/plain")
	require.NoError(t, err)
	id2, err := s.Save(ctx, "owner-a", []byte("same content"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same owner and content must address one entry")

	id3, err := s.Save(ctx, "owner-b", []byte("same content"), "text/plain")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3, "different owners must never share an entry")
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	oldID, err := s.Save(ctx, "owner-a", []byte("old"), "text/plain")
	require.NoError(t, err)

	// Move the clock past the first entry's TTL, then save a fresh one.
	s.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	freshID, err := s.Save(ctx, "owner-a", []byte("fresh"), "text/plain")
	require.NoError(t, err)

	count, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.Get(ctx, oldID, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound, "swept blob must be gone")

	_, err = s.Get(ctx, freshID, "owner-a")
	assert.NoError(t, err, "sweep must never remove a non-expired entry")
}

func TestMemoryStore_ExpiredEntryNotReadableBeforeSweep(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	id, err := s.Save(ctx, "owner-a", []byte("data"), "text/plain")
	require.NoError(t, err)

	s.SetClock(func() time.Time { return now.Add(2 * time.Minute) })

	_, err = s.Get(ctx, id, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteOwned(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	id1, _ := s.Save(ctx, "owner-a", []byte("one"), "text/plain")
	id2, _ := s.Save(ctx, "owner-a", []byte("two"), "text/plain")
	other, _ := s.Save(ctx, "owner-b", []byte("three"), "text/plain")

	require.NoError(t, s.DeleteOwned(ctx, "owner-a", []string{id1, id2, other, "missing"}))

	_, err := s.Get(ctx, id1, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, id2, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)

	// owner-b's blob survives a release that names it by mistake.
	_, err = s.Get(ctx, other, "owner-b")
	assert.NoError(t, err)
}

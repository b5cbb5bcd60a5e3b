package job

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "jobs.db"),
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	rec := NewRecord("owner-a", "blob-src", DefaultOptions(), time.Hour)
	rec.TrackBlob("page-1")
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "owner-a", got.OwnerToken)
	assert.Equal(t, StagePending, got.Stage)
	assert.Equal(t, rec.Options, got.Options)
	assert.Equal(t, []string{"page-1"}, got.IntermediateBlobs)
}

func TestSQLiteRepository_UpdateUnknownJob(t *testing.T) {
	repo := newSQLiteRepo(t)
	rec := NewRecord("owner-a", "blob-src", DefaultOptions(), time.Hour)

	_, err := repo.Update(context.Background(), rec.ID, func(r *Record) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepository_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	rec := NewRecord("owner-a", "blob-src", DefaultOptions(), time.Hour)
	require.NoError(t, repo.Create(ctx, rec))
	_, err := repo.Update(ctx, rec.ID, func(r *Record) error {
		return r.AdvanceTo(StageConverting)
	})
	require.NoError(t, err)

	// Progress checkpoints hammer the row from several connections while
	// cancellation lands in the middle. With transactions that only take
	// the write lock at commit, a checkpoint based on a pre-cancel read
	// could overwrite the flag; serialized updates must keep it.
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, uerr := repo.Update(ctx, rec.ID, func(r *Record) error {
					return r.SetProgress(10 + step)
				})
				assert.NoError(t, uerr)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, uerr := repo.Update(ctx, rec.ID, func(r *Record) error {
			r.CancelRequested = true
			return nil
		})
		assert.NoError(t, uerr)
	}()
	wg.Wait()

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested, "cancellation flag lost to a concurrent checkpoint")
}

func TestSQLiteRepository_ReapExpired(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	stale := NewRecord("owner-a", "blob-old", DefaultOptions(), -time.Minute)
	stale.TrackBlob("page-old")
	require.NoError(t, repo.Create(ctx, stale))
	fresh := NewRecord("owner-b", "blob-new", DefaultOptions(), time.Hour)
	require.NoError(t, repo.Create(ctx, fresh))

	reaped, err := repo.ReapExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	assert.Equal(t, stale.ID, reaped[0].ID)
	assert.Equal(t, []string{"page-old"}, reaped[0].IntermediateBlobs)

	_, err = repo.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

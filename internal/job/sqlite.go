package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository on SQLite. Records are stored as
// key-value rows: the scalar lifecycle fields get real columns so sweeps can
// query them, everything nested (options, blob list) rides along as JSON.
type SQLiteRepository struct {
	db *sql.DB
}

// SQLiteConfig holds SQLite connection settings.
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	owner_token TEXT NOT NULL,
	source_blob_ref TEXT NOT NULL,
	stage TEXT NOT NULL,
	progress_percent INTEGER NOT NULL,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	options TEXT NOT NULL,
	total_pages INTEGER NOT NULL DEFAULT 0,
	avg_confidence REAL NOT NULL DEFAULT 0,
	estimated_secs INTEGER NOT NULL DEFAULT 0,
	result_blob_ref TEXT NOT NULL DEFAULT '',
	error_summary TEXT NOT NULL DEFAULT '',
	intermediate_blobs TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at);
`

// NewSQLiteRepository opens (and migrates) a SQLite-backed job repository.
func NewSQLiteRepository(cfg SQLiteConfig) (*SQLiteRepository, error) {
	// _txlock=immediate takes the write lock at BEGIN, so two Update calls
	// on separate connections serialize instead of racing their deferred
	// transactions into a lost write.
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate jobs table: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

const jobColumns = `id, owner_token, source_blob_ref, stage, progress_percent,
	cancel_requested, options, total_pages, avg_confidence, estimated_secs,
	result_blob_ref, error_summary, intermediate_blobs,
	created_at, updated_at, expires_at`

// Create stores a new record.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	opts, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	blobs, err := json.Marshal(rec.IntermediateBlobs)
	if err != nil {
		return fmt.Errorf("marshal blob list: %w", err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID.String(), rec.OwnerToken, rec.SourceBlobRef, string(rec.Stage),
		rec.ProgressPercent, rec.CancelRequested, string(opts), rec.TotalPages,
		rec.AvgConfidence, rec.EstimatedSecs, rec.ResultBlobRef,
		rec.ErrorSummary, string(blobs),
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(), rec.ExpiresAt.Unix(),
	)
	return err
}

// Get returns a copy of the record.
func (r *SQLiteRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String())
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if rec.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Update applies fn inside an immediate transaction so concurrent writers
// serialize and readers never see a half-applied record.
func (r *SQLiteRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Record) error) (*Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String())
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if rec.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	opts, err := json.Marshal(rec.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	blobs, err := json.Marshal(rec.IntermediateBlobs)
	if err != nil {
		return nil, fmt.Errorf("marshal blob list: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE jobs SET
		stage = ?, progress_percent = ?, cancel_requested = ?, options = ?,
		total_pages = ?, avg_confidence = ?, estimated_secs = ?,
		result_blob_ref = ?, error_summary = ?, intermediate_blobs = ?,
		updated_at = ?, expires_at = ?
		WHERE id = ?`,
		string(rec.Stage), rec.ProgressPercent, rec.CancelRequested,
		string(opts), rec.TotalPages, rec.AvgConfidence, rec.EstimatedSecs,
		rec.ResultBlobRef, rec.ErrorSummary, string(blobs),
		rec.UpdatedAt.Unix(), rec.ExpiresAt.Unix(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

// Delete removes a record. Idempotent.
func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id.String())
	return err
}

// ReapExpired removes and returns records whose TTL passed before now.
func (r *SQLiteRepository) ReapExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reap: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query expired jobs: %w", err)
	}

	var reaped []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reaped = append(reaped, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM jobs WHERE expires_at < ?`, now.Unix()); err != nil {
		return nil, fmt.Errorf("delete expired jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reap: %w", err)
	}
	return reaped, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                    Record
		rawID, stage           string
		rawOpts, rawBlobs      string
		created, updated, exps int64
	)
	err := row.Scan(
		&rawID, &rec.OwnerToken, &rec.SourceBlobRef, &stage,
		&rec.ProgressPercent, &rec.CancelRequested, &rawOpts, &rec.TotalPages,
		&rec.AvgConfidence, &rec.EstimatedSecs, &rec.ResultBlobRef,
		&rec.ErrorSummary, &rawBlobs, &created, &updated, &exps,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	rec.ID = id
	rec.Stage = Stage(stage)
	if err := json.Unmarshal([]byte(rawOpts), &rec.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal([]byte(rawBlobs), &rec.IntermediateBlobs); err != nil {
		return nil, fmt.Errorf("decode blob list: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	rec.ExpiresAt = time.Unix(exps, 0)
	return &rec, nil
}

// Package usage periodically records buffer size and progress snapshots
// to durable storage, for capacity planning and after-the-fact auditing
// of how full a buffer directory got and how quickly it drained.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Snapshot is one point-in-time reading of a buffer's size and progress.
type Snapshot struct {
	TotalRecords     uint64
	TotalBufferBytes int64
	PendingAcks      int
	WriterFileID     uint16
	ReaderFileID     uint16
	RecordedAt       time.Time
}

// Recorder persists usage snapshots.
type Recorder interface {
	RecordSnapshot(ctx context.Context, s Snapshot) error
	RecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
}

// PostgresRecorder implements Recorder against a Postgres table,
// grounded on the teacher's PostgresManifest: one pool, parameterized
// queries, errors wrapped with %w.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder returns a Recorder backed by db. Callers are
// expected to have already created the buffer_usage_snapshots table;
// this package does not create it.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// RecordSnapshot inserts a new usage row.
func (r *PostgresRecorder) RecordSnapshot(ctx context.Context, s Snapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO buffer_usage_snapshots
			(total_records, total_buffer_bytes, pending_acks, writer_file_id, reader_file_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.TotalRecords, s.TotalBufferBytes, s.PendingAcks, s.WriterFileID, s.ReaderFileID, s.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage snapshot: %w", err)
	}
	return nil
}

// RecentSnapshots returns the most recent limit snapshots, newest first.
func (r *PostgresRecorder) RecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT total_records, total_buffer_bytes, pending_acks, writer_file_id, reader_file_id, recorded_at
		FROM buffer_usage_snapshots
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.TotalRecords, &s.TotalBufferBytes, &s.PendingAcks, &s.WriterFileID, &s.ReaderFileID, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InMemoryRecorder implements Recorder in memory, for tests and for
// running without a configured database.
type InMemoryRecorder struct {
	snapshots []Snapshot
}

// NewInMemoryRecorder returns an empty in-memory Recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// RecordSnapshot appends s to the in-memory history.
func (r *InMemoryRecorder) RecordSnapshot(_ context.Context, s Snapshot) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}

// RecentSnapshots returns up to the last limit snapshots, newest first.
func (r *InMemoryRecorder) RecentSnapshots(_ context.Context, limit int) ([]Snapshot, error) {
	n := len(r.snapshots)
	if limit > n {
		limit = n
	}
	out := make([]Snapshot, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.snapshots[n-1-i]
	}
	return out, nil
}

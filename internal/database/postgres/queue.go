package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/lib/pq"
)

// QueueRepository is the ingestion queue. Dequeue uses SKIP LOCKED so
// concurrent workers never receive the same item.
type QueueRepository struct {
	pool *Pool
}

// NewQueueRepository creates a new PostgreSQL ingestion queue
func NewQueueRepository(pool *Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// Enqueue appends a work item
func (r *QueueRepository) Enqueue(ctx context.Context, item database.WorkItem) error {
	bundle, err := json.Marshal(item.Bundle)
	if err != nil {
		return fmt.Errorf("encode feature bundle: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO ingest_queue (picture_id, bundle, raw_ref) VALUES ($1, $2, $3)
	`, item.PictureID, bundle, item.RawRef)
	return database.Wrap("enqueue", err)
}

// Dequeue removes and returns the oldest item, or nil if the queue is empty
func (r *QueueRepository) Dequeue(ctx context.Context) (*database.WorkItem, error) {
	var item database.WorkItem
	var bundle []byte

	err := r.pool.QueryRow(ctx, `
		DELETE FROM ingest_queue
		WHERE id = (
			SELECT id FROM ingest_queue
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, picture_id, bundle, raw_ref, enqueued_at
	`).Scan(&item.ID, &item.PictureID, &bundle, &item.RawRef, &item.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("dequeue", err)
	}

	if err := json.Unmarshal(bundle, &item.Bundle); err != nil {
		return nil, fmt.Errorf("decode queued bundle of %s: %w", item.PictureID, err)
	}
	return &item, nil
}

// Len returns the number of pending items
func (r *QueueRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ingest_queue").Scan(&n); err != nil {
		return 0, database.Wrap("queue length", err)
	}
	return n, nil
}

// ReviewRepository tracks clusters whose centrality should be fully
// recomputed later
type ReviewRepository struct {
	pool *Pool
}

// NewReviewRepository creates a new PostgreSQL review list
func NewReviewRepository(pool *Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// AddToReview flags a cluster, remembering the last admitted picture
func (r *ReviewRepository) AddToReview(ctx context.Context, clusterID, pictureID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO review (cluster_id, picture_id) VALUES ($1, $2)
		ON CONFLICT (cluster_id) DO UPDATE SET picture_id = EXCLUDED.picture_id, added_at = NOW()
	`, clusterID, pictureID)
	return database.Wrap("add to review", err)
}

// PopReview removes and returns up to limit flagged clusters, oldest first
func (r *ReviewRepository) PopReview(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM review
		WHERE cluster_id = ANY(
			SELECT cluster_id FROM review
			ORDER BY added_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING cluster_id
	`, limit)
	if err != nil {
		return nil, database.Wrap("pop review", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// PendingReview returns flagged cluster ids without removing them
func (r *ReviewRepository) PendingReview(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.pool.QueryRow(ctx, "SELECT COALESCE(array_agg(cluster_id ORDER BY added_at), '{}') FROM review").
		Scan(pq.Array(&ids))
	if err != nil {
		return nil, database.Wrap("pending review", err)
	}
	return ids, nil
}

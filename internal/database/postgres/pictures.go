package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/picture"
	"github.com/pgvector/pgvector-go"
)

// PictureRepository stores the write-once picture table
type PictureRepository struct {
	pool *Pool
}

// NewPictureRepository creates a new PostgreSQL picture repository
func NewPictureRepository(pool *Pool) *PictureRepository {
	return &PictureRepository{pool: pool}
}

// signatureArg returns the pgvector value for a bundle, or nil when the
// bundle carries no hash.
func signatureArg(b picture.FeatureBundle) any {
	sig := picture.Signature(b)
	if sig == nil {
		return nil
	}
	return pgvector.NewVector(sig)
}

// AddPicture stores a picture. Existing ids are left untouched.
func (r *PictureRepository) AddPicture(ctx context.Context, pic picture.Picture) error {
	bundle, err := json.Marshal(pic.Bundle)
	if err != nil {
		return fmt.Errorf("encode feature bundle: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO pictures (id, bundle, raw_ref, signature)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, pic.ID, bundle, pic.RawRef, signatureArg(pic.Bundle))
	return database.Wrap("add picture", err)
}

// GetPicture returns a picture by id
func (r *PictureRepository) GetPicture(ctx context.Context, pictureID string) (*picture.Picture, error) {
	var pic picture.Picture
	var bundle []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, bundle, raw_ref, created_at
		FROM pictures
		WHERE id = $1
	`, pictureID).Scan(&pic.ID, &bundle, &pic.RawRef, &pic.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("picture %s: %w", pictureID, database.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("get picture", err)
	}

	if err := json.Unmarshal(bundle, &pic.Bundle); err != nil {
		return nil, fmt.Errorf("decode feature bundle of %s: %w", pictureID, err)
	}
	return &pic, nil
}

// CountPictures returns the number of stored pictures
func (r *PictureRepository) CountPictures(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pictures").Scan(&count); err != nil {
		return 0, database.Wrap("count pictures", err)
	}
	return count, nil
}

// Nearest returns up to k picture ids ordered by signature cosine distance
func (r *PictureRepository) Nearest(ctx context.Context, sig []float32, k int) ([]string, error) {
	if len(sig) == 0 || k <= 0 {
		return nil, nil
	}

	tx, err := r.pool.DB().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, database.Wrap("nearest pictures", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, database.Wrap("set ef_search", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id
		FROM pictures
		WHERE signature IS NOT NULL
		ORDER BY signature <=> $1
		LIMIT $2
	`, pgvector.NewVector(sig), k)
	if err != nil {
		return nil, database.Wrap("nearest pictures", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// SignaturesSince returns signatures of pictures inserted after seq
func (r *PictureRepository) SignaturesSince(ctx context.Context, seq int64) ([]database.StoredSignature, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, id, signature
		FROM pictures
		WHERE seq > $1 AND signature IS NOT NULL
		ORDER BY seq
	`, seq)
	if err != nil {
		return nil, database.Wrap("load signatures", err)
	}
	defer rows.Close()

	var out []database.StoredSignature
	for rows.Next() {
		var s database.StoredSignature
		var vec pgvector.Vector
		if err := rows.Scan(&s.Seq, &s.PictureID, &vec); err != nil {
			return nil, database.Wrap("scan signature", err)
		}
		s.Signature = vec.Slice()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate signatures", err)
	}
	return out, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, database.Wrap("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate ids", err)
	}
	return ids, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/lib/pq"
)

// ClusterRepository stores clusters and their scored memberships
type ClusterRepository struct {
	pool *Pool
}

// NewClusterRepository creates a new PostgreSQL cluster repository
func NewClusterRepository(pool *Pool) *ClusterRepository {
	return &ClusterRepository{pool: pool}
}

// ListClusters returns all cluster ids in creation order
func (r *ClusterRepository) ListClusters(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT id FROM clusters ORDER BY seq")
	if err != nil {
		return nil, database.Wrap("list clusters", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ClusterSizes returns member counts in ListClusters order
func (r *ClusterRepository) ClusterSizes(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COUNT(m.picture_id)
		FROM clusters c
		LEFT JOIN cluster_members m ON m.cluster_id = c.id
		GROUP BY c.id, c.seq
		ORDER BY c.seq
	`)
	if err != nil {
		return nil, database.Wrap("cluster sizes", err)
	}
	defer rows.Close()

	var sizes []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, database.Wrap("scan cluster size", err)
		}
		sizes = append(sizes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate cluster sizes", err)
	}
	return sizes, nil
}

// GetMembers returns the member picture ids of a cluster, most central first
func (r *ClusterRepository) GetMembers(ctx context.Context, clusterID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT picture_id FROM cluster_members
		WHERE cluster_id = $1
		ORDER BY score, picture_id
	`, clusterID)
	if err != nil {
		return nil, database.Wrap("get members", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GetMembersWithScore returns members and scores, most central first
func (r *ClusterRepository) GetMembersWithScore(ctx context.Context, clusterID string) ([]database.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT picture_id, score, seq FROM cluster_members
		WHERE cluster_id = $1
		ORDER BY score, picture_id
	`, clusterID)
	if err != nil {
		return nil, database.Wrap("get members with score", err)
	}
	defer rows.Close()

	var members []database.Member
	for rows.Next() {
		var m database.Member
		if err := rows.Scan(&m.PictureID, &m.Score, &m.Seq); err != nil {
			return nil, database.Wrap("scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate members", err)
	}
	return members, nil
}

// GetCluster returns a cluster with all its members
func (r *ClusterRepository) GetCluster(ctx context.Context, clusterID string) (*cluster.Cluster, error) {
	var node cluster.Node
	var group string
	err := r.pool.QueryRow(ctx, `
		SELECT id, label, image, grp FROM clusters WHERE id = $1
	`, clusterID).Scan(&node.ID, &node.Label, &node.Image, &group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("get cluster", err)
	}

	members, err := r.GetMembersWithScore(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	c := cluster.New(node)
	c.Group = group
	for _, m := range members {
		c.AddMember(m.PictureID, m.Score)
	}
	return c, nil
}

// ClusterOf returns the cluster containing pictureID, or "" if none
func (r *ClusterRepository) ClusterOf(ctx context.Context, pictureID string) (string, error) {
	var clusterID string
	err := r.pool.QueryRow(ctx, "SELECT cluster_id FROM cluster_members WHERE picture_id = $1", pictureID).Scan(&clusterID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", database.Wrap("cluster of picture", err)
	}
	return clusterID, nil
}

// AddPictureToCluster inserts the membership with score 0. The picture_id
// primary key makes the insert the atomic guard of the one-cluster rule.
func (r *ClusterRepository) AddPictureToCluster(ctx context.Context, pictureID, clusterID string) error {
	res, err := r.pool.Exec(ctx, `
		INSERT INTO cluster_members (picture_id, cluster_id, score)
		VALUES ($1, $2, 0)
		ON CONFLICT (picture_id) DO NOTHING
	`, pictureID, clusterID)
	if err != nil {
		return missingReference("add picture to cluster", err, pictureID, clusterID)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	current, err := r.ClusterOf(ctx, pictureID)
	if err != nil {
		return err
	}
	if current != clusterID {
		return fmt.Errorf("picture %s already belongs to cluster %s", pictureID, current)
	}
	return nil
}

// AddPictureToNewCluster creates a singleton cluster for pictureID
func (r *ClusterRepository) AddPictureToNewCluster(ctx context.Context, pictureID string, score float64) (string, error) {
	clusterID := uuid.NewString()

	err := r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (id, label, image) VALUES ($1, $2, $3)
		`, clusterID, "cluster-"+clusterID[:8], pictureID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cluster_members (picture_id, cluster_id, score) VALUES ($1, $2, $3)
		`, pictureID, clusterID, score)
		return err
	})
	if err != nil {
		return "", database.Wrap("add picture to new cluster", err)
	}
	return clusterID, nil
}

// UpdateScore replaces a member's score
func (r *ClusterRepository) UpdateScore(ctx context.Context, clusterID, pictureID string, score float64) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE cluster_members SET score = $3
		WHERE cluster_id = $1 AND picture_id = $2
	`, clusterID, pictureID, score)
	if err != nil {
		return database.Wrap("update score", err)
	}
	return expectOneRow(res, clusterID, pictureID)
}

// IncrementScore adds delta to a member's score in a single statement, so
// concurrent increments from different workers all land.
func (r *ClusterRepository) IncrementScore(ctx context.Context, clusterID, pictureID string, delta float64) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE cluster_members SET score = score + $3
		WHERE cluster_id = $1 AND picture_id = $2
	`, clusterID, pictureID, delta)
	if err != nil {
		return database.Wrap("increment score", err)
	}
	return expectOneRow(res, clusterID, pictureID)
}

func expectOneRow(res sql.Result, clusterID, pictureID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return database.Wrap("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("member %s of cluster %s: %w", pictureID, clusterID, database.ErrNotFound)
	}
	return nil
}

// SaveCluster creates or replaces a cluster and its memberships. Members
// taken from another cluster are moved, and a cluster emptied by the move is
// deleted in the same transaction.
func (r *ClusterRepository) SaveCluster(ctx context.Context, c *cluster.Cluster) error {
	ids := c.MemberIDs()
	if len(ids) == 0 {
		return fmt.Errorf("cluster %s has no members", c.ID)
	}
	err := r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		var previous []string
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(array_agg(DISTINCT cluster_id), '{}') FROM cluster_members
			WHERE picture_id = ANY($1) AND cluster_id <> $2
		`, pq.Array(ids), c.ID).Scan(pq.Array(&previous)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (id, label, image, grp) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, image = EXCLUDED.image, grp = EXCLUDED.grp
		`, c.ID, c.Label, c.Image, c.Group); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cluster_members WHERE cluster_id = $1 AND NOT (picture_id = ANY($2))
		`, c.ID, pq.Array(ids)); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cluster_members (picture_id, cluster_id, score) VALUES ($1, $2, $3)
				ON CONFLICT (picture_id) DO UPDATE SET cluster_id = EXCLUDED.cluster_id, score = EXCLUDED.score
			`, id, c.ID, c.Members[id]); err != nil {
				return missingReference("save cluster", err, id, c.ID)
			}
		}
		if len(previous) == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM clusters c WHERE c.id = ANY($1)
			AND NOT EXISTS (SELECT 1 FROM cluster_members m WHERE m.cluster_id = c.id)
		`, pq.Array(previous))
		return err
	})
	return database.Wrap("save cluster", err)
}

// missingReference turns a foreign key violation on cluster_members into
// ErrNotFound for the picture or cluster it names.
func missingReference(op string, err error, pictureID, clusterID string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23503" {
		return database.Wrap(op, err)
	}
	if pqErr.Constraint == "cluster_members_picture_id_fkey" {
		return fmt.Errorf("picture %s: %w", pictureID, database.ErrNotFound)
	}
	return fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
}

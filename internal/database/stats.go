package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
)

// StoreStats summarizes the clustering state of a store.
type StoreStats struct {
	Pictures   int     `json:"pictures"`
	Clusters   int     `json:"clusters"`
	Clustered  int     `json:"clustered"`
	Singletons int     `json:"singletons"`
	Largest    int     `json:"largest"`
	MeanSize   float64 `json:"mean_size"`
	Sizes      []int   `json:"sizes"`
	// Consistent is false when the clustered picture count differs from the
	// stored picture count. Admissions in flight cause short-lived gaps.
	Consistent bool `json:"consistent"`
}

// ComputeStats reads counts and cluster sizes from s.
func ComputeStats(ctx context.Context, s interface {
	PictureStore
	ClusterReader
}) (*StoreStats, error) {
	pictures, err := s.CountPictures(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pictures: %w", err)
	}
	sizes, err := s.ClusterSizes(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster sizes: %w", err)
	}

	stats := &StoreStats{Pictures: pictures, Clusters: len(sizes), Sizes: sizes}
	for _, n := range sizes {
		stats.Clustered += n
		if n == 1 {
			stats.Singletons++
		}
		if n > stats.Largest {
			stats.Largest = n
		}
	}
	if len(sizes) > 0 {
		stats.MeanSize = float64(stats.Clustered) / float64(len(sizes))
	}
	stats.Consistent = stats.Clustered == pictures
	return stats, nil
}

// LoadClusters reads every cluster with its members, in store order.
func LoadClusters(ctx context.Context, r ClusterReader) ([]*cluster.Cluster, error) {
	ids, err := r.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	out := make([]*cluster.Cluster, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetCluster(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get cluster %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CheckMembers verifies that every member of c is a stored picture. The
// first unknown member is reported as ErrNotFound.
func CheckMembers(ctx context.Context, p PictureStore, c *cluster.Cluster) error {
	for _, id := range c.MemberIDs() {
		if _, err := p.GetPicture(ctx, id); err != nil {
			return fmt.Errorf("cluster %s member %s: %w", c.ID, id, err)
		}
	}
	return nil
}

package database

import (
	"context"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// PictureStore provides access to the write-once picture table
type PictureStore interface {
	// AddPicture stores a picture. Storing an existing id is a no-op.
	AddPicture(ctx context.Context, pic picture.Picture) error
	// GetPicture returns a picture by id, or ErrNotFound
	GetPicture(ctx context.Context, pictureID string) (*picture.Picture, error)
	// CountPictures returns the number of stored pictures
	CountPictures(ctx context.Context) (int, error)
}

// ClusterReader provides read-only access to clusters and memberships
type ClusterReader interface {
	// ListClusters returns all cluster ids in creation order
	ListClusters(ctx context.Context) ([]string, error)
	// ClusterSizes returns the member count of every cluster, in ListClusters order
	ClusterSizes(ctx context.Context) ([]int, error)
	// GetMembers returns the member picture ids of a cluster, most central
	// (lowest score) first with ties broken by id. The representative
	// candidate scan reads the first entry.
	GetMembers(ctx context.Context, clusterID string) ([]string, error)
	// GetMembersWithScore returns members with their centrality score, most central first
	GetMembersWithScore(ctx context.Context, clusterID string) ([]Member, error)
	// GetCluster returns a full cluster, or ErrNotFound
	GetCluster(ctx context.Context, clusterID string) (*cluster.Cluster, error)
	// ClusterOf returns the cluster a picture belongs to, or "" if none
	ClusterOf(ctx context.Context, pictureID string) (string, error)
}

// ClusterWriter provides atomic membership and score mutations
type ClusterWriter interface {
	ClusterReader

	// AddPictureToCluster adds a picture to an existing cluster with score 0.
	// Adding a picture already in the cluster is a no-op.
	AddPictureToCluster(ctx context.Context, pictureID, clusterID string) error
	// AddPictureToNewCluster creates a cluster whose sole member is the picture
	AddPictureToNewCluster(ctx context.Context, pictureID string, score float64) (string, error)
	// UpdateScore replaces a member's score
	UpdateScore(ctx context.Context, clusterID, pictureID string, score float64) error
	// IncrementScore atomically adds delta to a member's score
	IncrementScore(ctx context.Context, clusterID, pictureID string, delta float64) error
	// SaveCluster creates or replaces a cluster from an imported dump. A
	// cluster without members is rejected. Members are moved out of their
	// previous cluster, which is deleted if the move empties it.
	SaveCluster(ctx context.Context, c *cluster.Cluster) error
}

// ClusterStore is everything the clustering core needs from storage
type ClusterStore interface {
	PictureStore
	ClusterWriter
}

// Queue delivers ingestion work items
type Queue interface {
	// Enqueue adds a work item
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue takes the next item, or returns nil when the queue is empty
	Dequeue(ctx context.Context) (*WorkItem, error)
	// Len returns the number of pending items
	Len(ctx context.Context) (int, error)
}

// ReviewWriter records admitted pictures for later re-evaluation
type ReviewWriter interface {
	// AddToReview marks a cluster as needing a full centrality recompute
	AddToReview(ctx context.Context, clusterID, pictureID string) error
	// PopReview returns and clears the clusters awaiting review
	PopReview(ctx context.Context, limit int) ([]string, error)
}

// CandidateIndex narrows the candidate scan to pictures with a similar
// signature
type CandidateIndex interface {
	// Nearest returns up to k picture ids whose signature is close to sig
	Nearest(ctx context.Context, sig []float32, k int) ([]string, error)
}

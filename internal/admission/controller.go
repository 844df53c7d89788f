// Package admission decides which cluster, if any, absorbs a newly ingested
// picture and drives the worker loop that feeds it from the queue.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/distance"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// Distancer returns the fused distance between two bundles.
type Distancer interface {
	Distance(a, b picture.FeatureBundle) (float64, distance.Decision, error)
}

// Reevaluator updates centrality scores after a picture joins a cluster.
type Reevaluator interface {
	Reevaluate(ctx context.Context, clusterID, lastAdded string) error
}

// Config holds the admission policy settings.
type Config struct {
	// MaxDistForNewCluster bounds the distance of an acceptable match
	MaxDistForNewCluster float64
	// Strategy is the selection strategy name
	Strategy string
	// Granularity is the comparison granularity
	Granularity Granularity
	// CandidateK is how many nearest signatures the candidate index returns;
	// 0 disables the pre-filter
	CandidateK int
}

// Controller admits pictures one at a time. It keeps no cluster state between
// admissions; every call re-reads the store.
type Controller struct {
	store       database.ClusterStore
	dist        Distancer
	centrality  Reevaluator
	selector    Selector
	granularity Granularity
	index       database.CandidateIndex
	candidateK  int
	review      database.ReviewWriter
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithCandidateIndex enables the nearest-signature pre-filter.
func WithCandidateIndex(index database.CandidateIndex) Option {
	return func(c *Controller) { c.index = index }
}

// WithReview records every admission on the review list.
func WithReview(review database.ReviewWriter) Option {
	return func(c *Controller) { c.review = review }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller for cfg.
func NewController(store database.ClusterStore, dist Distancer, centrality Reevaluator, cfg Config, opts ...Option) (*Controller, error) {
	selector, err := NewSelector(cfg.Strategy, cfg.MaxDistForNewCluster, store)
	if err != nil {
		return nil, err
	}
	granularity, err := ParseGranularity(string(cfg.Granularity))
	if err != nil {
		return nil, err
	}
	c := &Controller{
		store:       store,
		dist:        dist,
		centrality:  centrality,
		selector:    selector,
		granularity: granularity,
		candidateK:  cfg.CandidateK,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Strategy returns the active selection strategy name.
func (c *Controller) Strategy() string {
	return c.selector.Name()
}

// Admission is the outcome of admitting one picture.
type Admission struct {
	ClusterID string `json:"cluster_id"`
	// Clustered is false when the picture already belonged to ClusterID
	Clustered bool `json:"clustered"`
	// NewCluster is true when a singleton cluster was created
	NewCluster bool `json:"new_cluster"`
}

// Admit stores the picture and assigns it to a cluster: the one chosen by the
// selection strategy, or a new singleton cluster with score 0. A picture
// already in a cluster is left where it is.
func (c *Controller) Admit(ctx context.Context, pictureID string, bundle picture.FeatureBundle) (string, error) {
	res, err := c.AdmitItem(ctx, database.WorkItem{PictureID: pictureID, Bundle: bundle})
	return res.ClusterID, err
}

// AdmitItem is Admit for a queued work item, keeping its raw reference.
func (c *Controller) AdmitItem(ctx context.Context, item database.WorkItem) (Admission, error) {
	if item.PictureID == "" {
		return Admission{}, errors.New("work item without picture id")
	}

	pic := picture.Picture{ID: item.PictureID, Bundle: item.Bundle, RawRef: item.RawRef}
	if err := c.store.AddPicture(ctx, pic); err != nil {
		return Admission{}, fmt.Errorf("store picture: %w", err)
	}

	current, err := c.store.ClusterOf(ctx, item.PictureID)
	if err != nil {
		return Admission{}, fmt.Errorf("cluster of picture: %w", err)
	}
	if current != "" {
		c.logger.Info("picture already clustered", "picture", item.PictureID, "cluster", current)
		return Admission{ClusterID: current}, nil
	}

	images, clusters, err := c.Candidates(ctx, item.PictureID, item.Bundle)
	if err != nil {
		return Admission{}, fmt.Errorf("candidates: %w", err)
	}

	clusterID, ok, err := c.selector.Select(ctx, images, clusters)
	if err != nil {
		return Admission{}, fmt.Errorf("select cluster: %w", err)
	}

	res := Admission{ClusterID: clusterID, Clustered: true, NewCluster: !ok}
	if ok {
		if err := c.store.AddPictureToCluster(ctx, item.PictureID, clusterID); err != nil {
			return Admission{}, fmt.Errorf("add to cluster %s: %w", clusterID, err)
		}
		if err := c.centrality.Reevaluate(ctx, clusterID, item.PictureID); err != nil {
			return Admission{}, fmt.Errorf("update centrality of %s: %w", clusterID, err)
		}
		c.logger.Info("picture added to existing cluster",
			"picture", item.PictureID, "cluster", clusterID, "candidates", len(clusters))
	} else {
		res.ClusterID, err = c.store.AddPictureToNewCluster(ctx, item.PictureID, 0)
		if err != nil {
			return Admission{}, fmt.Errorf("create cluster: %w", err)
		}
		c.logger.Info("picture added to new cluster",
			"picture", item.PictureID, "cluster", res.ClusterID, "candidates", len(clusters))
	}

	if c.review != nil {
		if err := c.review.AddToReview(ctx, res.ClusterID, item.PictureID); err != nil {
			c.logger.Warn("failed to record review", "cluster", res.ClusterID, "error", err)
		}
	}
	return res, nil
}

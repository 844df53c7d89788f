package admission

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/centrality"
	"github.com/kozaktomas/photo-cluster/internal/database/mock"
	"github.com/kozaktomas/photo-cluster/internal/distance"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *distance.Engine {
	t.Helper()
	e, err := distance.NewEngine(distance.Config{
		Fusion: distance.FusionUnanimous,
		Algorithms: []distance.AlgorithmConfig{
			{Name: "phash", Kind: distance.KindHash, Enabled: true, Required: true, Thresholds: distance.Thresholds{Low: 0.15, High: 0.3}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// countingDistancer counts comparisons made through it
type countingDistancer struct {
	inner Distancer
	calls atomic.Int64
}

func (c *countingDistancer) Distance(a, b picture.FeatureBundle) (float64, distance.Decision, error) {
	c.calls.Add(1)
	return c.inner.Distance(a, b)
}

func hashBundle(h uint64) picture.FeatureBundle {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(h >> (56 - 8*i))
	}
	return picture.FeatureBundle{"phash": {Hash: b}}
}

type fixture struct {
	store      *mock.MockClusterStore
	dist       *countingDistancer
	maintainer *centrality.Maintainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mock.NewMockClusterStore()
	engine := newEngine(t)
	return &fixture{
		store:      store,
		dist:       &countingDistancer{inner: engine},
		maintainer: centrality.NewMaintainer(store, engine, centrality.WithLogger(discardLogger())),
	}
}

func (f *fixture) controller(t *testing.T, cfg Config, opts ...Option) *Controller {
	t.Helper()
	if cfg.MaxDistForNewCluster == 0 {
		cfg.MaxDistForNewCluster = 0.2
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c, err := NewController(f.store, f.dist, f.maintainer, cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mustAdmit(t *testing.T, c *Controller, id string, bundle picture.FeatureBundle) string {
	t.Helper()
	clusterID, err := c.Admit(context.Background(), id, bundle)
	if err != nil {
		t.Fatalf("Admit(%s) failed: %v", id, err)
	}
	return clusterID
}

func storePicture(t *testing.T, f *fixture, id string, bundle picture.FeatureBundle) {
	t.Helper()
	if err := f.store.AddPicture(context.Background(), picture.Picture{ID: id, Bundle: bundle}); err != nil {
		t.Fatal(err)
	}
}

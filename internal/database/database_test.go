package database_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/database/mock"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

func hashBundle(h uint64) picture.FeatureBundle {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(h >> (56 - 8*i))
	}
	return picture.FeatureBundle{"phash": {Hash: b}}
}

func addPictures(t *testing.T, store *mock.MockClusterStore, hashes map[string]uint64) {
	t.Helper()
	for _, id := range slices.Sorted(maps.Keys(hashes)) {
		if err := store.AddPicture(context.Background(), picture.Picture{ID: id, Bundle: hashBundle(hashes[id])}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"opposite", []float32{1, -1}, []float32{-1, 1}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"length mismatch", []float32{1}, []float32{1, 2}, 2},
		{"empty", nil, nil, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := database.CosineDistance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineDistance = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if database.Wrap("op", nil) != nil {
		t.Error("wrapping nil should return nil")
	}

	notFound := fmt.Errorf("picture x: %w", database.ErrNotFound)
	if got := database.Wrap("get", notFound); got != notFound {
		t.Errorf("ErrNotFound should pass through unchanged, got %v", got)
	}

	cause := errors.New("connection refused")
	err := database.Wrap("count", cause)
	var sae *database.StoreAccessError
	if !errors.As(err, &sae) || sae.Op != "count" {
		t.Fatalf("expected StoreAccessError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if err.Error() != "store count: connection refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if again := database.Wrap("outer", err); again != err {
		t.Error("an already wrapped error should not be wrapped twice")
	}
}

func TestHNSWSignatureIndex(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockClusterStore()
	addPictures(t, store, map[string]uint64{"a": 0, "b": 1, "z": math.MaxUint64})

	idx := database.NewHNSWSignatureIndex(store)
	if err := idx.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 3 {
		t.Errorf("expected 3 signatures, got %d", idx.Count())
	}

	ids, err := idx.Nearest(ctx, picture.Signature(hashBundle(0)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || !slices.Contains(ids, "a") || !slices.Contains(ids, "b") {
		t.Errorf("expected a and b, got %v", ids)
	}

	// Pictures stored after the first sync are picked up by the next search
	addPictures(t, store, map[string]uint64{"y": math.MaxUint64 - 1})
	ids, err = idx.Nearest(ctx, picture.Signature(hashBundle(math.MaxUint64)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 4 || !slices.Contains(ids, "y") {
		t.Errorf("expected y after catching up, got %v (count %d)", ids, idx.Count())
	}

	if ids, _ := idx.Nearest(ctx, nil, 2); len(ids) != 0 {
		t.Errorf("empty signature should return nothing, got %v", ids)
	}
}

func TestHNSWSignatureIndexSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "signatures.gob")
	store := mock.NewMockClusterStore()
	addPictures(t, store, map[string]uint64{"a": 0, "b": 1})

	idx := database.NewHNSWSignatureIndex(store)
	if err := idx.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	// Loaded without a source: search must rely on the saved signatures
	restored := database.NewHNSWSignatureIndex(nil)
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}
	if restored.Count() != 2 {
		t.Errorf("expected 2 restored signatures, got %d", restored.Count())
	}
	ids, err := restored.Nearest(ctx, picture.Signature(hashBundle(1)), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("expected b, got %v", ids)
	}

	// A restored index resumes syncing after the saved position
	addPictures(t, store, map[string]uint64{"c": 3})
	resumed := database.NewHNSWSignatureIndex(store)
	if err := resumed.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := resumed.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if resumed.Count() != 3 {
		t.Errorf("expected 3 signatures after resume, got %d", resumed.Count())
	}

	if err := database.NewHNSWSignatureIndex(nil).Load(filepath.Join(t.TempDir(), "missing.gob")); err != nil {
		t.Errorf("missing file should not be an error, got %v", err)
	}
}

func TestComputeStats(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockClusterStore()
	addPictures(t, store, map[string]uint64{"a": 0, "b": 1, "c": 2, "d": 3})

	big, _ := store.AddPictureToNewCluster(ctx, "a", 0)
	for _, id := range []string{"b", "c"} {
		if err := store.AddPictureToCluster(ctx, id, big); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.AddPictureToNewCluster(ctx, "d", 0); err != nil {
		t.Fatal(err)
	}

	stats, err := database.ComputeStats(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pictures != 4 || stats.Clusters != 2 || stats.Clustered != 4 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if stats.Singletons != 1 || stats.Largest != 3 || stats.MeanSize != 2 {
		t.Errorf("unexpected size figures %+v", stats)
	}
	if !stats.Consistent || !slices.Equal(stats.Sizes, []int{3, 1}) {
		t.Errorf("unexpected sizes %+v", stats)
	}

	addPictures(t, store, map[string]uint64{"e": 4})
	stats, _ = database.ComputeStats(ctx, store)
	if stats.Consistent {
		t.Error("an unclustered picture should make the store inconsistent")
	}

	store.CountError = errors.New("down")
	if _, err := database.ComputeStats(ctx, store); err == nil {
		t.Error("expected error")
	}
}

func TestLoadClusters(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockClusterStore()
	first, _ := store.AddPictureToNewCluster(ctx, "a", 0)
	second, _ := store.AddPictureToNewCluster(ctx, "b", 0)

	clusters, err := database.LoadClusters(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 || clusters[0].ID != first || clusters[1].ID != second {
		t.Errorf("expected clusters in creation order, got %v", clusters)
	}

	store.ListClustersError = errors.New("down")
	if _, err := database.LoadClusters(ctx, store); err == nil {
		t.Error("expected error")
	}
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	if _, err := database.GetClusterStore(ctx); err == nil && !database.IsInitialized() {
		t.Error("expected error before registration")
	}

	store := mock.NewMockClusterStore()
	queue := mock.NewMockQueue()
	review := mock.NewMockReview()
	database.RegisterPostgresBackend(
		func() database.ClusterStore { return store },
		func() database.Queue { return queue },
		func() database.ReviewWriter { return review },
	)
	t.Cleanup(func() { database.RegisterCandidateIndex(nil) })

	if !database.IsInitialized() {
		t.Fatal("expected backend to be initialized")
	}
	if got, err := database.GetClusterStore(ctx); err != nil || got != database.ClusterStore(store) {
		t.Errorf("GetClusterStore = %v, %v", got, err)
	}
	if got, err := database.GetQueue(ctx); err != nil || got != database.Queue(queue) {
		t.Errorf("GetQueue = %v, %v", got, err)
	}
	if got, err := database.GetReviewWriter(ctx); err != nil || got != database.ReviewWriter(review) {
		t.Errorf("GetReviewWriter = %v, %v", got, err)
	}

	if database.GetCandidateIndex() != nil {
		t.Error("no candidate index should be registered yet")
	}
	idx := database.NewHNSWSignatureIndex(store)
	database.RegisterCandidateIndex(idx)
	if database.GetCandidateIndex() != database.CandidateIndex(idx) {
		t.Error("expected the registered index")
	}
}

func TestCheckMembers(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockClusterStore()
	addPictures(t, store, map[string]uint64{"a": 0, "b": 1})

	known := cluster.New(cluster.Node{ID: "known"})
	known.AddMember("a", 0)
	known.AddMember("b", 0)
	if err := database.CheckMembers(ctx, store, known); err != nil {
		t.Errorf("expected known members to pass, got %v", err)
	}

	ghost := cluster.New(cluster.Node{ID: "imported"})
	ghost.AddMember("a", 0)
	ghost.AddMember("ghost", 0)
	err := database.CheckMembers(ctx, store, ghost)
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "cluster imported member ghost: picture ghost: not found" {
		t.Errorf("unexpected message %q", err)
	}

	store.GetPictureError = errors.New("connection refused")
	if err := database.CheckMembers(ctx, store, known); errors.Is(err, database.ErrNotFound) || err == nil {
		t.Errorf("expected the store error, got %v", err)
	}
}

package mock

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

func newStoreWith(t *testing.T, ids ...string) *MockClusterStore {
	t.Helper()
	store := NewMockClusterStore()
	for _, id := range ids {
		if err := store.AddPicture(context.Background(), picture.Picture{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestSaveClusterDeletesEmptiedClusters(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, "a", "b", "c")

	first, _ := store.AddPictureToNewCluster(ctx, "a", 0)
	second, _ := store.AddPictureToNewCluster(ctx, "b", 0)
	third, _ := store.AddPictureToNewCluster(ctx, "c", 0)

	merged := cluster.New(cluster.Node{ID: first})
	merged.AddMember("a", 0)
	merged.AddMember("b", 0)
	if err := store.SaveCluster(ctx, merged); err != nil {
		t.Fatal(err)
	}

	ids, _ := store.ListClusters(ctx)
	if !slices.Equal(ids, []string{first, third}) {
		t.Errorf("expected [%s %s] after the merge, got %v", first, third, ids)
	}
	sizes, _ := store.ClusterSizes(ctx)
	if !slices.Equal(sizes, []int{2, 1}) {
		t.Errorf("expected sizes [2 1], got %v", sizes)
	}
	if _, err := store.GetCluster(ctx, second); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("emptied cluster should be gone, got %v", err)
	}
	if owner, _ := store.ClusterOf(ctx, "b"); owner != first {
		t.Errorf("b should belong to %s, got %q", first, owner)
	}
}

func TestSaveClusterKeepsPartlyMovedClusters(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, "a", "b", "c")

	first, _ := store.AddPictureToNewCluster(ctx, "a", 0)
	if err := store.AddPictureToCluster(ctx, "b", first); err != nil {
		t.Fatal(err)
	}

	moved := cluster.New(cluster.Node{ID: "imported"})
	moved.AddMember("b", 0)
	moved.AddMember("c", 0)
	if err := store.SaveCluster(ctx, moved); err != nil {
		t.Fatal(err)
	}

	members, err := store.GetMembers(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []string{"a"}) {
		t.Errorf("expected %s to keep a, got %v", first, members)
	}
}

func TestSaveClusterRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t)

	if err := store.SaveCluster(ctx, cluster.New(cluster.Node{ID: "empty"})); err == nil {
		t.Fatal("expected error for a cluster without members")
	}
	if ids, _ := store.ListClusters(ctx); len(ids) != 0 {
		t.Errorf("nothing should be stored, got %v", ids)
	}
}

func TestGetMembersMostCentralFirst(t *testing.T) {
	ctx := context.Background()
	store := newStoreWith(t, "a", "b", "c", "d")

	id, _ := store.AddPictureToNewCluster(ctx, "a", 0)
	for _, p := range []string{"b", "c", "d"} {
		if err := store.AddPictureToCluster(ctx, p, id); err != nil {
			t.Fatal(err)
		}
	}
	scores := map[string]float64{"a": 0.9, "b": 0.2, "c": 0.5, "d": 0.2}
	for p, s := range scores {
		if err := store.UpdateScore(ctx, id, p, s); err != nil {
			t.Fatal(err)
		}
	}

	members, err := store.GetMembers(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []string{"b", "d", "c", "a"}) {
		t.Errorf("expected [b d c a], got %v", members)
	}
}

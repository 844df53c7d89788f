package admission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/distance"
)

func TestChooseFromClusterMatches(t *testing.T) {
	tests := []struct {
		name    string
		matches []distance.ClusterMatch
		wantID  string
		wantOK  bool
	}{
		{"no candidates", nil, "", false},
		{
			"first acceptable beats closer later match",
			[]distance.ClusterMatch{
				{ClusterID: "c1", Distance: 0.18, Decision: distance.Yes},
				{ClusterID: "c2", Distance: 0.05, Decision: distance.Yes},
			},
			"c1", true,
		},
		{
			"maybe is never accepted",
			[]distance.ClusterMatch{
				{ClusterID: "c1", Distance: 0.01, Decision: distance.Maybe},
				{ClusterID: "c2", Distance: 0.1, Decision: distance.Yes},
			},
			"c2", true,
		},
		{
			"distance above bound",
			[]distance.ClusterMatch{{ClusterID: "c1", Distance: 0.21, Decision: distance.Yes}},
			"", false,
		},
		{
			"bound is inclusive",
			[]distance.ClusterMatch{{ClusterID: "c1", Distance: 0.2, Decision: distance.Yes}},
			"c1", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ChooseFromClusterMatches(tt.matches, 0.2)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("got (%q, %v); want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestPonderatedDistance(t *testing.T) {
	tests := []struct {
		name  string
		d     float64
		size  int
		total int
		want  float64
	}{
		{"size at target", 0.1, 4, 16, 0.1},
		{"small cluster favoured", 0.1, 2, 16, -0.4},
		{"large cluster penalized", 0.1, 8, 16, 1.1},
		{"empty store", 0.1, 3, 0, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PonderatedDistance(tt.d, tt.size, tt.total); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PonderatedDistance = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestChooseFromPictureMatches(t *testing.T) {
	matches := []distance.ImageMatch{
		{PictureID: "p1", ClusterID: "big", Distance: 0.05, Decision: distance.Yes},
		{PictureID: "p2", ClusterID: "small", Distance: 0.1, Decision: distance.Yes},
		{PictureID: "p3", ClusterID: "tiny", Distance: 0.02, Decision: distance.Maybe},
	}
	sizes := map[string]int{"big": 8, "small": 2, "tiny": 1}

	id, ok := ChooseFromPictureMatches(matches, 16, sizes, 0.2)
	if !ok || id != "small" {
		t.Errorf("expected small, got (%q, %v)", id, ok)
	}
	if matches[0].Distance != 0.05 || matches[1].ClusterID != "small" {
		t.Error("input matches must not be modified")
	}

	// Every weighted distance above the bound
	if _, ok := ChooseFromPictureMatches(matches[:1], 16, sizes, 0.2); ok {
		t.Error("expected no selection for an oversized cluster")
	}
}

func TestNewSelector(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", StrategyFirstAcceptable, StrategyPonderated} {
		s, err := NewSelector(name, 0.2, f.store)
		if err != nil {
			t.Fatalf("NewSelector(%q) failed: %v", name, err)
		}
		if name != "" && s.Name() != name {
			t.Errorf("expected %s, got %s", name, s.Name())
		}
	}
	if _, err := NewSelector("closest", 0.2, f.store); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if _, err := NewSelector(StrategyPonderated, 0.2, nil); err == nil {
		t.Error("expected error without a size source")
	}
}

func TestPonderatedSelect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One big cluster of 8 and one of 1, 9 pictures in total: target 3
	big, _ := f.store.AddPictureToNewCluster(ctx, "b0", 0)
	for i := 1; i < 8; i++ {
		if err := f.store.AddPictureToCluster(ctx, fmt.Sprintf("b%d", i), big); err != nil {
			t.Fatal(err)
		}
	}
	small, _ := f.store.AddPictureToNewCluster(ctx, "s0", 0)
	for i := range 8 {
		storePicture(t, f, fmt.Sprintf("b%d", i), hashBundle(0))
	}
	storePicture(t, f, "s0", hashBundle(0))

	s := &Ponderated{MaxDist: 0.2, Sizes: f.store}
	id, ok, err := s.Select(ctx, []distance.ImageMatch{
		{PictureID: "b0", ClusterID: big, Distance: 0.01, Decision: distance.Yes},
		{PictureID: "s0", ClusterID: small, Distance: 0.1, Decision: distance.Yes},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != small {
		t.Errorf("expected the small cluster, got (%q, %v)", id, ok)
	}

	if _, ok, _ := s.Select(ctx, nil, nil); ok {
		t.Error("no matches must select nothing")
	}

	f.store.CountError = errors.New("down")
	if _, _, err := s.Select(ctx, []distance.ImageMatch{{ClusterID: small}}, nil); err == nil {
		t.Error("expected count error")
	}
}

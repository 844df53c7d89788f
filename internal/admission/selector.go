package admission

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/photo-cluster/internal/distance"
)

// Selection strategy names.
const (
	StrategyFirstAcceptable = "first-acceptable"
	StrategyPonderated      = "ponderated"
)

// Selector picks the cluster a new picture joins from its candidate matches.
// ok is false when no candidate qualifies.
type Selector interface {
	Name() string
	Select(ctx context.Context, images []distance.ImageMatch, clusters []distance.ClusterMatch) (clusterID string, ok bool, err error)
}

// SizeSource provides the figures the ponderated strategy weighs with.
type SizeSource interface {
	CountPictures(ctx context.Context) (int, error)
	GetMembers(ctx context.Context, clusterID string) ([]string, error)
}

// NewSelector builds the named strategy. An empty name selects
// first-acceptable.
func NewSelector(name string, maxDist float64, sizes SizeSource) (Selector, error) {
	switch name {
	case "", StrategyFirstAcceptable:
		return &FirstAcceptable{MaxDist: maxDist}, nil
	case StrategyPonderated:
		if sizes == nil {
			return nil, fmt.Errorf("strategy %q needs a size source", name)
		}
		return &Ponderated{MaxDist: maxDist, Sizes: sizes}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", name)
	}
}

// FirstAcceptable returns the first cluster match, in candidate order, that
// is a YES within MaxDist.
type FirstAcceptable struct {
	MaxDist float64
}

func (s *FirstAcceptable) Name() string { return StrategyFirstAcceptable }

func (s *FirstAcceptable) Select(_ context.Context, _ []distance.ImageMatch, clusters []distance.ClusterMatch) (string, bool, error) {
	id, ok := ChooseFromClusterMatches(clusters, s.MaxDist)
	return id, ok, nil
}

// ChooseFromClusterMatches returns the first match with decision Yes and
// distance <= maxDist. Earlier candidates win over closer later ones.
func ChooseFromClusterMatches(matches []distance.ClusterMatch, maxDist float64) (string, bool) {
	for _, m := range matches {
		if m.Decision == distance.Yes && m.Distance <= maxDist {
			return m.ClusterID, true
		}
	}
	return "", false
}

// Ponderated weighs every picture match by how far its cluster's size is
// from sqrt(total pictures) and picks the lowest weighted YES within MaxDist.
type Ponderated struct {
	MaxDist float64
	Sizes   SizeSource
}

func (s *Ponderated) Name() string { return StrategyPonderated }

func (s *Ponderated) Select(ctx context.Context, images []distance.ImageMatch, _ []distance.ClusterMatch) (string, bool, error) {
	if len(images) == 0 {
		return "", false, nil
	}
	total, err := s.Sizes.CountPictures(ctx)
	if err != nil {
		return "", false, fmt.Errorf("count pictures: %w", err)
	}
	sizes := make(map[string]int)
	for _, m := range images {
		if _, ok := sizes[m.ClusterID]; ok {
			continue
		}
		members, err := s.Sizes.GetMembers(ctx, m.ClusterID)
		if err != nil {
			return "", false, fmt.Errorf("size of cluster %s: %w", m.ClusterID, err)
		}
		sizes[m.ClusterID] = len(members)
	}
	id, ok := ChooseFromPictureMatches(images, total, sizes, s.MaxDist)
	return id, ok, nil
}

// PonderatedDistance adds (size - target) / target to d, where target is
// sqrt(total). Clusters larger than the target are penalized, smaller ones
// favoured.
func PonderatedDistance(d float64, clusterSize, total int) float64 {
	target := math.Sqrt(float64(total))
	if target == 0 {
		return d
	}
	return d + (float64(clusterSize)-target)/target
}

// ChooseFromPictureMatches re-weights every match with PonderatedDistance and
// returns the cluster of the lowest weighted match that is a YES within
// maxDist. The input slice is left untouched.
func ChooseFromPictureMatches(matches []distance.ImageMatch, total int, sizes map[string]int, maxDist float64) (string, bool) {
	weighted := make([]distance.ImageMatch, len(matches))
	for i, m := range matches {
		m.Distance = PonderatedDistance(m.Distance, sizes[m.ClusterID], total)
		weighted[i] = m
	}
	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].Distance < weighted[j].Distance
	})
	for _, m := range weighted {
		if m.Decision == distance.Yes && m.Distance <= maxDist {
			return m.ClusterID, true
		}
	}
	return "", false
}

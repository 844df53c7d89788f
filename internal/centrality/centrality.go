// Package centrality maintains the centrality score of every cluster member:
// the sum of its distances to all other members, lower meaning more
// representative.
package centrality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/distance"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// Mode selects how the incremental path writes existing members' scores.
type Mode string

const (
	// AtomicDelta adds each new distance with the store's atomic increment.
	// Concurrent insertions into the same cluster never lose a delta.
	AtomicDelta Mode = "atomic"
	// Snapshot writes snapshot score + delta with a plain update, for
	// stores that only offer set semantics.
	Snapshot Mode = "snapshot"
)

// Distancer returns the fused distance between two bundles.
type Distancer interface {
	Distance(a, b picture.FeatureBundle) (float64, distance.Decision, error)
}

// Store is the part of the cluster store the maintainer uses.
type Store interface {
	GetPicture(ctx context.Context, pictureID string) (*picture.Picture, error)
	GetMembers(ctx context.Context, clusterID string) ([]string, error)
	GetMembersWithScore(ctx context.Context, clusterID string) ([]database.Member, error)
	UpdateScore(ctx context.Context, clusterID, pictureID string, score float64) error
	IncrementScore(ctx context.Context, clusterID, pictureID string, delta float64) error
}

// Maintainer recomputes or incrementally updates centrality scores.
type Maintainer struct {
	store  Store
	dist   Distancer
	mode   Mode
	logger *slog.Logger
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithMode sets the incremental write mode.
func WithMode(mode Mode) Option {
	return func(m *Maintainer) { m.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Maintainer) { m.logger = l }
}

// NewMaintainer creates a maintainer. Defaults to AtomicDelta.
func NewMaintainer(store Store, dist Distancer, opts ...Option) *Maintainer {
	m := &Maintainer{store: store, dist: dist, mode: AtomicDelta, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Reevaluate updates the scores of a cluster. With lastAdded set only the
// O(N) incremental path runs; otherwise every score is recomputed.
func (m *Maintainer) Reevaluate(ctx context.Context, clusterID, lastAdded string) error {
	if lastAdded == "" {
		return m.Recompute(ctx, clusterID)
	}
	return m.Update(ctx, clusterID, lastAdded)
}

// pairDistance measures the two pictures in id order so that d(a,b) and
// d(b,a) are the same number even for asymmetric matchers. A failed
// comparison counts as the maximal distance.
func (m *Maintainer) pairDistance(idA string, a picture.FeatureBundle, idB string, b picture.FeatureBundle) float64 {
	if idB < idA {
		a, b = b, a
		idA, idB = idB, idA
	}
	d, _, err := m.dist.Distance(a, b)
	if err != nil {
		var mfe *distance.MissingFeatureError
		if errors.As(err, &mfe) {
			m.logger.Warn("comparison skipped, counted as maximal distance",
				"a", idA, "b", idB, "algorithm", mfe.Algorithm)
		} else {
			m.logger.Warn("comparison failed, counted as maximal distance", "a", idA, "b", idB, "error", err)
		}
		return 1
	}
	return d
}

// loadBundles fetches bundles for ids, reusing those already in cache. A
// member without a stored picture gets an empty bundle, which compares at
// maximal distance.
func (m *Maintainer) loadBundles(ctx context.Context, ids []string, cache map[string]picture.FeatureBundle) error {
	for _, id := range ids {
		if _, ok := cache[id]; ok {
			continue
		}
		pic, err := m.store.GetPicture(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			m.logger.Warn("member has no stored picture", "picture", id)
			cache[id] = picture.FeatureBundle{}
			continue
		}
		if err != nil {
			return fmt.Errorf("load picture %s: %w", id, err)
		}
		cache[id] = pic.Bundle
	}
	return nil
}

// Centrality returns the sum of distances from id to every other member.
func (m *Maintainer) Centrality(ctx context.Context, id string, bundle picture.FeatureBundle, memberIDs []string) (float64, error) {
	cache := map[string]picture.FeatureBundle{id: bundle}
	if err := m.loadBundles(ctx, memberIDs, cache); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, other := range memberIDs {
		if other == id {
			continue
		}
		sum += m.pairDistance(id, bundle, other, cache[other])
	}
	return sum, nil
}

// Recompute replaces every member's score with its full centrality. O(N²)
// comparisons for a cluster of N members; each pair is compared once.
func (m *Maintainer) Recompute(ctx context.Context, clusterID string) error {
	ids, err := m.store.GetMembers(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("get members of %s: %w", clusterID, err)
	}
	cache := make(map[string]picture.FeatureBundle, len(ids))
	if err := m.loadBundles(ctx, ids, cache); err != nil {
		return err
	}

	scores := make([]float64, len(ids))
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			d := m.pairDistance(ids[i], cache[ids[i]], ids[j], cache[ids[j]])
			scores[i] += d
			scores[j] += d
		}
	}

	for i, id := range ids {
		if err := m.store.UpdateScore(ctx, clusterID, id, scores[i]); err != nil {
			return fmt.Errorf("update score of %s: %w", id, err)
		}
	}
	m.logger.Debug("centrality recomputed", "cluster", clusterID, "members", len(ids))
	return nil
}

// Update accounts for newID having just joined clusterID. The member list
// and scores are snapshotted first and every pair distance between newID and
// another member is added to both sides. Additions are based on the snapshot
// or applied as atomic increments, never on values re-read during the pass.
//
// In AtomicDelta mode a pair is owned by whichever of its two members joined
// later, so concurrent insertions into one cluster count every pair exactly
// once. Update must therefore run once per insertion. Seq is assigned at
// insert time, not at commit: if the earlier joiner commits last, the later
// joiner's snapshot can miss it and that pair is never counted. Recompute of
// the clusters on the review list repairs such scores.
func (m *Maintainer) Update(ctx context.Context, clusterID, newID string) error {
	snapshot, err := m.store.GetMembersWithScore(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("snapshot members of %s: %w", clusterID, err)
	}

	var self *database.Member
	for i := range snapshot {
		if snapshot[i].PictureID == newID {
			self = &snapshot[i]
			break
		}
	}
	if self == nil {
		return fmt.Errorf("member %s of cluster %s: %w", newID, clusterID, database.ErrNotFound)
	}

	others := make([]database.Member, 0, len(snapshot))
	ids := make([]string, 0, len(snapshot))
	for _, mem := range snapshot {
		if mem.PictureID == newID {
			continue
		}
		if m.mode != Snapshot && self.Seq > 0 && mem.Seq > self.Seq {
			continue
		}
		others = append(others, mem)
		ids = append(ids, mem.PictureID)
	}

	newPic, err := m.store.GetPicture(ctx, newID)
	if err != nil {
		return fmt.Errorf("load picture %s: %w", newID, err)
	}
	cache := map[string]picture.FeatureBundle{newID: newPic.Bundle}
	if err := m.loadBundles(ctx, ids, cache); err != nil {
		return err
	}

	deltas := make([]float64, len(others))
	newScore := 0.0
	for i, mem := range others {
		deltas[i] = m.pairDistance(newID, newPic.Bundle, mem.PictureID, cache[mem.PictureID])
		newScore += deltas[i]
	}

	if m.mode == Snapshot {
		err = m.store.UpdateScore(ctx, clusterID, newID, newScore)
	} else {
		err = m.store.IncrementScore(ctx, clusterID, newID, newScore)
	}
	if err != nil {
		return fmt.Errorf("update score of %s: %w", newID, err)
	}

	for i, mem := range others {
		if m.mode == Snapshot {
			err = m.store.UpdateScore(ctx, clusterID, mem.PictureID, mem.Score+deltas[i])
		} else {
			err = m.store.IncrementScore(ctx, clusterID, mem.PictureID, deltas[i])
		}
		if err != nil {
			return fmt.Errorf("update score of %s: %w", mem.PictureID, err)
		}
	}
	m.logger.Debug("centrality updated", "cluster", clusterID, "added", newID, "compared", len(others))
	return nil
}

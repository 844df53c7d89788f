package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/distance"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// Granularity selects what a new picture is compared against.
type Granularity string

const (
	// GranularityMembers compares against every member; a cluster's match is
	// its closest member's match.
	GranularityMembers Granularity = "members"
	// GranularityRepresentative compares against each cluster's most central
	// member only.
	GranularityRepresentative Granularity = "representative"
)

// ParseGranularity validates a granularity name. Empty selects members.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "", GranularityMembers:
		return GranularityMembers, nil
	case GranularityRepresentative:
		return GranularityRepresentative, nil
	default:
		return "", fmt.Errorf("unknown comparison granularity %q", s)
	}
}

// Candidates compares bundle against the stored clusters. Picture matches
// come back sorted by ascending distance; cluster matches keep the store's
// cluster order. pictureID itself is never compared, and members without a
// stored picture are skipped.
func (c *Controller) Candidates(ctx context.Context, pictureID string, bundle picture.FeatureBundle) ([]distance.ImageMatch, []distance.ClusterMatch, error) {
	clusterIDs, err := c.candidateClusters(ctx, pictureID, bundle)
	if err != nil {
		return nil, nil, err
	}

	var images []distance.ImageMatch
	var clusters []distance.ClusterMatch
	for _, clusterID := range clusterIDs {
		members, err := c.store.GetMembers(ctx, clusterID)
		if errors.Is(err, database.ErrNotFound) {
			// deleted by an import since it was listed
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("members of %s: %w", clusterID, err)
		}
		if c.granularity == GranularityRepresentative && len(members) > 1 {
			members = members[:1]
		}

		var best *distance.ClusterMatch
		for _, memberID := range members {
			if memberID == pictureID {
				continue
			}
			pic, err := c.store.GetPicture(ctx, memberID)
			if errors.Is(err, database.ErrNotFound) {
				c.logger.Warn("comparison skipped, member has no stored picture", "picture", pictureID, "target", memberID, "cluster", clusterID)
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("load picture %s: %w", memberID, err)
			}
			d, decision, err := c.dist.Distance(bundle, pic.Bundle)
			if err != nil {
				var mfe *distance.MissingFeatureError
				if errors.As(err, &mfe) {
					c.logger.Warn("comparison skipped", "picture", pictureID, "target", memberID, "algorithm", mfe.Algorithm)
					continue
				}
				return nil, nil, fmt.Errorf("compare with %s: %w", memberID, err)
			}

			images = append(images, distance.ImageMatch{
				PictureID: memberID,
				ClusterID: clusterID,
				Distance:  d,
				Decision:  decision,
			})
			if best == nil || d < best.Distance || (d == best.Distance && decision > best.Decision) {
				best = &distance.ClusterMatch{ClusterID: clusterID, Distance: d, Decision: decision}
			}
		}
		if best != nil {
			clusters = append(clusters, *best)
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Distance < images[j].Distance
	})
	return images, clusters, nil
}

// candidateClusters returns the clusters to scan, in store order. With a
// candidate index only clusters owning one of the nearest signatures are
// kept; index failures fall back to a full scan. pictureID is already stored,
// so one extra neighbour is requested in place of its own signature.
func (c *Controller) candidateClusters(ctx context.Context, pictureID string, bundle picture.FeatureBundle) ([]string, error) {
	all, err := c.store.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	if c.index == nil || c.candidateK <= 0 {
		return all, nil
	}
	sig := picture.Signature(bundle)
	if sig == nil {
		return all, nil
	}

	nearest, err := c.index.Nearest(ctx, sig, c.candidateK+1)
	if err != nil {
		c.logger.Warn("candidate index failed, scanning every cluster", "error", err)
		return all, nil
	}
	keep := make(map[string]bool, len(nearest))
	for _, id := range nearest {
		if id == pictureID {
			continue
		}
		clusterID, err := c.store.ClusterOf(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cluster of %s: %w", id, err)
		}
		if clusterID != "" {
			keep[clusterID] = true
		}
	}

	subset := make([]string, 0, len(keep))
	for _, id := range all {
		if keep[id] {
			subset = append(subset, id)
		}
	}
	c.logger.Debug("candidate clusters narrowed", "total", len(all), "kept", len(subset))
	return subset, nil
}

// Package cluster models clusters of near-duplicate pictures and their
// export shape.
package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// Node is the generic graph node a cluster is built on.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Image string `json:"image"`
}

// Membership is the behaviour specific to clusters.
type Membership interface {
	AddMember(pictureID string, score float64)
	HasMember(pictureID string) bool
	ReplaceMember(oldID, newID string)
	SameCluster(a, b string) bool
	Size() int
	MemberIDs() []string
}

// Cluster groups near-duplicate pictures. Members maps picture id to its
// centrality score (lower is more central).
type Cluster struct {
	Node
	Members map[string]float64
	Group   string
}

var _ Membership = (*Cluster)(nil)

// New returns an empty cluster on top of node.
func New(node Node) *Cluster {
	return &Cluster{Node: node, Members: make(map[string]float64)}
}

// AddMember inserts or overwrites a member.
func (c *Cluster) AddMember(pictureID string, score float64) {
	if c.Members == nil {
		c.Members = make(map[string]float64)
	}
	c.Members[pictureID] = score
}

// HasMember reports whether pictureID belongs to the cluster.
func (c *Cluster) HasMember(pictureID string) bool {
	_, ok := c.Members[pictureID]
	return ok
}

// ReplaceMember renames a member, keeping its score. Unknown ids are ignored.
func (c *Cluster) ReplaceMember(oldID, newID string) {
	score, ok := c.Members[oldID]
	if !ok {
		return
	}
	delete(c.Members, oldID)
	c.Members[newID] = score
}

// SameCluster reports whether both pictures are members.
func (c *Cluster) SameCluster(a, b string) bool {
	return c.HasMember(a) && c.HasMember(b)
}

// Size returns the number of members.
func (c *Cluster) Size() int {
	return len(c.Members)
}

// MemberIDs returns the member ids sorted.
func (c *Cluster) MemberIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for id := range c.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Representative returns the member with the lowest score. Ties resolve to
// the smallest id. Empty clusters return "".
func (c *Cluster) Representative() string {
	best := ""
	bestScore := 0.0
	for _, id := range c.MemberIDs() {
		s := c.Members[id]
		if best == "" || s < bestScore {
			best, bestScore = id, s
		}
	}
	return best
}

func (c *Cluster) String() string {
	return fmt.Sprintf("id=%s label=%s image=%s members=[%s] group=%s",
		c.ID, c.Label, c.Image, strings.Join(c.MemberIDs(), " "), c.Group)
}

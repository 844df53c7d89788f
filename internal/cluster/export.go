package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Export is the dump shape used by debug and export tooling.
type Export struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Image   string   `json:"image"`
	Members []string `json:"members"` // sorted
	Group   string   `json:"group"`
}

// Export converts the cluster to its dump shape. Scores are not part of it.
func (c *Cluster) Export() Export {
	return Export{
		ID:      c.ID,
		Label:   c.Label,
		Image:   c.Image,
		Members: c.MemberIDs(),
		Group:   c.Group,
	}
}

// Load rebuilds a cluster from its dump shape. Members get score 0. A dump
// without members is rejected since a stored cluster is never empty.
func Load(e Export) (*Cluster, error) {
	if e.ID == "" {
		return nil, errors.New("cluster export without id")
	}
	if len(e.Members) == 0 {
		return nil, fmt.Errorf("cluster %s has no members", e.ID)
	}
	c := New(Node{ID: e.ID, Label: e.Label, Image: e.Image})
	for _, m := range e.Members {
		c.AddMember(m, 0)
	}
	c.Group = e.Group
	return c, nil
}

// Edge links a picture node to the cluster it belongs to.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the full dump of a store: clusters, picture nodes and the
// membership edges between them.
type Graph struct {
	Clusters []Export `json:"clusters"`
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
}

// BuildGraph dumps clusters into a Graph. Clusters are ordered by id.
func BuildGraph(clusters []*Cluster) Graph {
	sorted := make([]*Cluster, len(clusters))
	copy(sorted, clusters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	g := Graph{
		Clusters: make([]Export, 0, len(sorted)),
		Nodes:    []Node{},
		Edges:    []Edge{},
	}
	for _, c := range sorted {
		g.Clusters = append(g.Clusters, c.Export())
		for _, m := range c.MemberIDs() {
			g.Nodes = append(g.Nodes, Node{ID: m, Label: m, Image: m})
			g.Edges = append(g.Edges, Edge{From: m, To: c.ID})
		}
	}
	return g
}

// WriteJSON writes clusters as a JSON array of dump shapes.
func WriteJSON(w io.Writer, clusters []*Cluster) error {
	out := make([]Export, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.Export())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode clusters: %w", err)
	}
	return nil
}

// ReadJSON reads a JSON array of dump shapes.
func ReadJSON(r io.Reader) ([]*Cluster, error) {
	var in []Export
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode clusters: %w", err)
	}
	out := make([]*Cluster, 0, len(in))
	for i, e := range in {
		c, err := Load(e)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

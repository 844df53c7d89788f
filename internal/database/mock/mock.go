// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// MockClusterStore is an in-memory database.ClusterStore. Every method takes
// the store lock, which makes each operation atomic like its PostgreSQL
// counterpart.
type MockClusterStore struct {
	mu       sync.Mutex
	pictures map[string]*picture.Picture
	picOrder []string
	clusters map[string]*cluster.Cluster
	order    []string
	memberOf map[string]string
	seqOf    map[string]int64
	nextID   int
	nextSeq  int64

	// Error injection
	AddPictureError     error
	GetPictureError     error
	CountError          error
	ListClustersError   error
	GetMembersError     error
	AddToClusterError   error
	NewClusterError     error
	UpdateScoreError    error
	IncrementScoreError error

	// Call counters
	UpdateScoreCalls    int
	IncrementScoreCalls int

	// BeforeIncrement, when set, runs inside IncrementScore before the lock
	// is taken. Tests use it to interleave concurrent updates.
	BeforeIncrement func(clusterID, pictureID string)
}

var (
	_ database.ClusterStore   = (*MockClusterStore)(nil)
	_ database.CandidateIndex = (*MockClusterStore)(nil)
)

// NewMockClusterStore creates an empty store
func NewMockClusterStore() *MockClusterStore {
	return &MockClusterStore{
		pictures: make(map[string]*picture.Picture),
		clusters: make(map[string]*cluster.Cluster),
		memberOf: make(map[string]string),
		seqOf:    make(map[string]int64),
	}
}

// join records pictureID as a member of clusterID; caller holds mu
func (m *MockClusterStore) join(pictureID, clusterID string) {
	m.nextSeq++
	m.memberOf[pictureID] = clusterID
	m.seqOf[pictureID] = m.nextSeq
}

// AddPicture stores a picture once
func (m *MockClusterStore) AddPicture(ctx context.Context, pic picture.Picture) error {
	if m.AddPictureError != nil {
		return m.AddPictureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pictures[pic.ID]; ok {
		return nil
	}
	if pic.CreatedAt.IsZero() {
		pic.CreatedAt = time.Now()
	}
	m.pictures[pic.ID] = &pic
	m.picOrder = append(m.picOrder, pic.ID)
	return nil
}

// GetPicture returns a stored picture
func (m *MockClusterStore) GetPicture(ctx context.Context, pictureID string) (*picture.Picture, error) {
	if m.GetPictureError != nil {
		return nil, m.GetPictureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pic, ok := m.pictures[pictureID]
	if !ok {
		return nil, fmt.Errorf("picture %s: %w", pictureID, database.ErrNotFound)
	}
	cp := *pic
	return &cp, nil
}

// CountPictures returns the number of stored pictures
func (m *MockClusterStore) CountPictures(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pictures), nil
}

// ListClusters returns cluster ids in creation order
func (m *MockClusterStore) ListClusters(ctx context.Context) ([]string, error) {
	if m.ListClustersError != nil {
		return nil, m.ListClustersError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// ClusterSizes returns member counts in creation order
func (m *MockClusterStore) ClusterSizes(ctx context.Context) ([]int, error) {
	if m.ListClustersError != nil {
		return nil, m.ListClustersError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.order))
	for i, id := range m.order {
		sizes[i] = m.clusters[id].Size()
	}
	return sizes, nil
}

func (m *MockClusterStore) membersLocked(clusterID string) ([]database.Member, error) {
	c, ok := m.clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}
	members := make([]database.Member, 0, c.Size())
	for id, score := range c.Members {
		members = append(members, database.Member{PictureID: id, Score: score, Seq: m.seqOf[id]})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].PictureID < members[j].PictureID
	})
	return members, nil
}

// GetMembers returns member ids, most central first
func (m *MockClusterStore) GetMembers(ctx context.Context, clusterID string) ([]string, error) {
	if m.GetMembersError != nil {
		return nil, m.GetMembersError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, err := m.membersLocked(clusterID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, mem := range members {
		ids[i] = mem.PictureID
	}
	return ids, nil
}

// GetMembersWithScore returns members with scores, most central first
func (m *MockClusterStore) GetMembersWithScore(ctx context.Context, clusterID string) ([]database.Member, error) {
	if m.GetMembersError != nil {
		return nil, m.GetMembersError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membersLocked(clusterID)
}

// GetCluster returns a copy of a cluster
func (m *MockClusterStore) GetCluster(ctx context.Context, clusterID string) (*cluster.Cluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}
	cp := cluster.New(c.Node)
	cp.Group = c.Group
	for id, s := range c.Members {
		cp.AddMember(id, s)
	}
	return cp, nil
}

// ClusterOf returns the cluster of a picture, or ""
func (m *MockClusterStore) ClusterOf(ctx context.Context, pictureID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberOf[pictureID], nil
}

// AddPictureToCluster adds a member with score 0
func (m *MockClusterStore) AddPictureToCluster(ctx context.Context, pictureID, clusterID string) error {
	if m.AddToClusterError != nil {
		return m.AddToClusterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clusters[clusterID]
	if !ok {
		return fmt.Errorf("cluster %s: %w", clusterID, database.ErrNotFound)
	}
	if current, ok := m.memberOf[pictureID]; ok {
		if current != clusterID {
			return fmt.Errorf("picture %s already belongs to cluster %s", pictureID, current)
		}
		return nil
	}
	c.AddMember(pictureID, 0)
	m.join(pictureID, clusterID)
	return nil
}

// AddPictureToNewCluster creates a singleton cluster
func (m *MockClusterStore) AddPictureToNewCluster(ctx context.Context, pictureID string, score float64) (string, error) {
	if m.NewClusterError != nil {
		return "", m.NewClusterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.memberOf[pictureID]; ok {
		return "", fmt.Errorf("picture %s already belongs to cluster %s", pictureID, current)
	}
	m.nextID++
	id := fmt.Sprintf("cluster-%d", m.nextID)
	c := cluster.New(cluster.Node{ID: id, Label: id, Image: pictureID})
	c.AddMember(pictureID, score)
	m.clusters[id] = c
	m.order = append(m.order, id)
	m.join(pictureID, id)
	return id, nil
}

// UpdateScore replaces a member's score
func (m *MockClusterStore) UpdateScore(ctx context.Context, clusterID, pictureID string, score float64) error {
	if m.UpdateScoreError != nil {
		return m.UpdateScoreError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateScoreCalls++
	c, ok := m.clusters[clusterID]
	if !ok || !c.HasMember(pictureID) {
		return fmt.Errorf("member %s of cluster %s: %w", pictureID, clusterID, database.ErrNotFound)
	}
	c.Members[pictureID] = score
	return nil
}

// IncrementScore atomically adds delta to a member's score
func (m *MockClusterStore) IncrementScore(ctx context.Context, clusterID, pictureID string, delta float64) error {
	if m.IncrementScoreError != nil {
		return m.IncrementScoreError
	}
	if m.BeforeIncrement != nil {
		m.BeforeIncrement(clusterID, pictureID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementScoreCalls++
	c, ok := m.clusters[clusterID]
	if !ok || !c.HasMember(pictureID) {
		return fmt.Errorf("member %s of cluster %s: %w", pictureID, clusterID, database.ErrNotFound)
	}
	c.Members[pictureID] += delta
	return nil
}

// SaveCluster creates or replaces a cluster. Clusters left without members
// by the move are deleted.
func (m *MockClusterStore) SaveCluster(ctx context.Context, c *cluster.Cluster) error {
	if c.Size() == 0 {
		return fmt.Errorf("cluster %s has no members", c.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.clusters[c.ID]; ok {
		for id := range old.Members {
			delete(m.memberOf, id)
		}
	} else {
		m.order = append(m.order, c.ID)
	}
	cp := cluster.New(c.Node)
	cp.Group = c.Group
	emptied := map[string]bool{}
	for id, s := range c.Members {
		if prev, ok := m.memberOf[id]; ok && prev != c.ID {
			delete(m.clusters[prev].Members, id)
			if m.clusters[prev].Size() == 0 {
				emptied[prev] = true
			}
		}
		cp.AddMember(id, s)
		m.join(id, c.ID)
	}
	m.clusters[c.ID] = cp
	if len(emptied) > 0 {
		for id := range emptied {
			delete(m.clusters, id)
		}
		m.order = slices.DeleteFunc(m.order, func(id string) bool { return emptied[id] })
	}
	return nil
}

// Nearest ranks stored pictures by signature cosine distance
func (m *MockClusterStore) Nearest(ctx context.Context, sig []float32, k int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type scored struct {
		id   string
		dist float64
	}
	var all []scored
	for _, id := range m.picOrder {
		s := picture.Signature(m.pictures[id].Bundle)
		if s == nil {
			continue
		}
		all = append(all, scored{id: id, dist: database.CosineDistance(sig, s)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	if len(all) > k {
		all = all[:k]
	}
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids, nil
}

// SignaturesSince lists signatures after seq (1-based insertion order)
func (m *MockClusterStore) SignaturesSince(ctx context.Context, seq int64) ([]database.StoredSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.StoredSignature
	for i := int(seq); i < len(m.picOrder); i++ {
		id := m.picOrder[i]
		out = append(out, database.StoredSignature{
			Seq:       int64(i + 1),
			PictureID: id,
			Signature: picture.Signature(m.pictures[id].Bundle),
		})
	}
	return out, nil
}

// MockQueue is an in-memory FIFO database.Queue
type MockQueue struct {
	mu    sync.Mutex
	items []database.WorkItem
	seq   int64

	DequeueError error
}

var _ database.Queue = (*MockQueue)(nil)

// NewMockQueue creates an empty queue
func NewMockQueue() *MockQueue {
	return &MockQueue{}
}

// Enqueue appends an item
func (q *MockQueue) Enqueue(ctx context.Context, item database.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	item.ID = q.seq
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	q.items = append(q.items, item)
	return nil
}

// Dequeue pops the oldest item or returns nil
func (q *MockQueue) Dequeue(ctx context.Context) (*database.WorkItem, error) {
	if q.DequeueError != nil {
		return nil, q.DequeueError
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return &item, nil
}

// Len returns the number of pending items
func (q *MockQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// MockReview is an in-memory database.ReviewWriter
type MockReview struct {
	mu      sync.Mutex
	pending []string
	last    map[string]string
}

var _ database.ReviewWriter = (*MockReview)(nil)

// NewMockReview creates an empty review list
func NewMockReview() *MockReview {
	return &MockReview{last: make(map[string]string)}
}

// AddToReview flags a cluster
func (r *MockReview) AddToReview(ctx context.Context, clusterID, pictureID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.last[clusterID]; !ok {
		r.pending = append(r.pending, clusterID)
	}
	r.last[clusterID] = pictureID
	return nil
}

// PopReview removes up to limit flagged clusters
func (r *MockReview) PopReview(ctx context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(limit, len(r.pending))
	out := append([]string(nil), r.pending[:n]...)
	r.pending = r.pending[n:]
	for _, id := range out {
		delete(r.last, id)
	}
	return out, nil
}

package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/database"
)

const statsCacheTTL = 10 * time.Second

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store database.ClusterStore
	queue database.Queue
	cache statsCache
}

// NewStatsHandler creates a new stats handler. queue may be nil.
func NewStatsHandler(store database.ClusterStore, queue database.Queue) *StatsHandler {
	return &StatsHandler{store: store, queue: queue}
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	database.StoreStats
	QueueDepth int `json:"queue_depth"`
}

// Get returns picture and cluster counts, cached for a few seconds
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := database.ComputeStats(r.Context(), h.store)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	resp := &StatsResponse{StoreStats: *stats}
	if h.queue != nil {
		if resp.QueueDepth, err = h.queue.Len(r.Context()); err != nil {
			respondStoreError(w, err)
			return
		}
	}

	h.cache.set(resp)
	respondJSON(w, http.StatusOK, resp)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
)

// Recomputer recomputes every centrality score of a cluster.
type Recomputer interface {
	Recompute(ctx context.Context, clusterID string) error
}

// ClustersHandler serves the cluster dump and debug endpoints
type ClustersHandler struct {
	store      database.ClusterStore
	recomputer Recomputer
	logger     *slog.Logger
}

// NewClustersHandler creates a new clusters handler
func NewClustersHandler(store database.ClusterStore, recomputer Recomputer, logger *slog.Logger) *ClustersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClustersHandler{store: store, recomputer: recomputer, logger: logger}
}

// MemberScore is a member with its centrality score
type MemberScore struct {
	PictureID string  `json:"picture_id"`
	Score     float64 `json:"score"`
}

// ClusterResponse is one cluster with scores and its representative
type ClusterResponse struct {
	cluster.Export
	Representative string        `json:"representative"`
	Scores         []MemberScore `json:"scores"`
}

// List returns every cluster in its dump shape
func (h *ClustersHandler) List(w http.ResponseWriter, r *http.Request) {
	clusters, err := database.LoadClusters(r.Context(), h.store)
	if err != nil {
		h.logger.Error("failed to load clusters", "error", err)
		respondStoreError(w, err)
		return
	}
	out := make([]cluster.Export, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.Export())
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one cluster with its member scores, most central first
func (h *ClustersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.store.GetCluster(r.Context(), id)
	if err != nil {
		h.logger.Warn("failed to get cluster", "cluster", sanitizeForLog(id), "error", err)
		respondStoreError(w, err)
		return
	}
	members, err := h.store.GetMembersWithScore(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	resp := ClusterResponse{
		Export:         c.Export(),
		Representative: c.Representative(),
		Scores:         make([]MemberScore, 0, len(members)),
	}
	for _, m := range members {
		resp.Scores = append(resp.Scores, MemberScore{PictureID: m.PictureID, Score: m.Score})
	}
	respondJSON(w, http.StatusOK, resp)
}

// Graph returns the cluster graph dump
func (h *ClustersHandler) Graph(w http.ResponseWriter, r *http.Request) {
	clusters, err := database.LoadClusters(r.Context(), h.store)
	if err != nil {
		h.logger.Error("failed to load clusters", "error", err)
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cluster.BuildGraph(clusters))
}

// Import saves clusters posted in their dump shape. Every member must be a
// stored picture. Scores are recomputed when a recomputer is configured.
func (h *ClustersHandler) Import(w http.ResponseWriter, r *http.Request) {
	var exports []cluster.Export
	if err := json.NewDecoder(r.Body).Decode(&exports); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	clusters := make([]*cluster.Cluster, 0, len(exports))
	for _, e := range exports {
		c, err := cluster.Load(e)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := database.CheckMembers(r.Context(), h.store, c); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondStoreError(w, err)
			return
		}
		clusters = append(clusters, c)
	}

	for _, c := range clusters {
		if err := h.store.SaveCluster(r.Context(), c); err != nil {
			h.logger.Error("failed to save cluster", "cluster", c.ID, "error", err)
			respondStoreError(w, err)
			return
		}
		if h.recomputer != nil {
			if err := h.recomputer.Recompute(r.Context(), c.ID); err != nil {
				h.logger.Warn("failed to recompute imported cluster", "cluster", c.ID, "error", err)
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": len(clusters)})
}

// Recompute recomputes every score of one cluster
func (h *ClustersHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	if h.recomputer == nil {
		respondError(w, http.StatusServiceUnavailable, "recompute not available")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetCluster(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.recomputer.Recompute(r.Context(), id); err != nil {
		h.logger.Error("failed to recompute cluster", "cluster", sanitizeForLog(id), "error", err)
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PictureCluster returns the cluster a picture belongs to
func (h *ClustersHandler) PictureCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	clusterID, err := h.store.ClusterOf(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if clusterID == "" {
		respondError(w, http.StatusNotFound, "picture is not clustered")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"picture_id": id, "cluster_id": clusterID})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/database/mock"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

func TestStatsHandler_Get_Success(t *testing.T) {
	store, _, _ := seededStore(t)
	queue := mock.NewMockQueue()
	queue.Enqueue(context.Background(), database.WorkItem{PictureID: "d"})
	handler := NewStatsHandler(store, queue)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)

	if stats.Pictures != 3 || stats.Clusters != 2 {
		t.Errorf("expected 3 pictures in 2 clusters, got %d in %d", stats.Pictures, stats.Clusters)
	}
	if stats.Singletons != 1 || stats.Largest != 2 {
		t.Errorf("expected 1 singleton and largest 2, got %d and %d", stats.Singletons, stats.Largest)
	}
	if !stats.Consistent {
		t.Error("expected consistent stats")
	}
	if stats.QueueDepth != 1 {
		t.Errorf("expected queue depth 1, got %d", stats.QueueDepth)
	}
}

func TestStatsHandler_Get_Inconsistent(t *testing.T) {
	store, _, _ := seededStore(t)
	// Stored but never clustered
	store.AddPicture(context.Background(), picture.Picture{ID: "orphan"})
	handler := NewStatsHandler(store, nil)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)
	if stats.Consistent {
		t.Error("expected inconsistent stats with an unclustered picture")
	}
}

func TestStatsHandler_Get_Caching(t *testing.T) {
	store, _, _ := seededStore(t)
	handler := NewStatsHandler(store, nil)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	// A failing store is not consulted while the cache is fresh
	store.CountError = errors.New("down")
	recorder = httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusOK)
}

func TestStatsHandler_Get_StoreError(t *testing.T) {
	store, _, _ := seededStore(t)
	store.CountError = errors.New("down")
	handler := NewStatsHandler(store, nil)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

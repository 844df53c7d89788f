package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-cluster/internal/database/mock"
	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// seededStore creates a mock store with two clusters: {a, b} and {c}
func seededStore(t *testing.T) (*mock.MockClusterStore, string, string) {
	t.Helper()
	ctx := context.Background()
	store := mock.NewMockClusterStore()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.AddPicture(ctx, picture.Picture{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	first, err := store.AddPictureToNewCluster(ctx, "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddPictureToCluster(ctx, "b", first); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateScore(ctx, first, "a", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateScore(ctx, first, "b", 0.3); err != nil {
		t.Fatal(err)
	}
	second, err := store.AddPictureToNewCluster(ctx, "c", 0)
	if err != nil {
		t.Fatal(err)
	}
	return store, first, second
}

// fakeRecomputer records recomputed clusters
type fakeRecomputer struct {
	calls []string
	err   error
}

func (f *fakeRecomputer) Recompute(ctx context.Context, clusterID string) error {
	f.calls = append(f.calls, clusterID)
	return f.err
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

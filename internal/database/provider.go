package database

import (
	"context"
	"fmt"
)

var (
	postgresClusterStore func() ClusterStore
	postgresQueue        func() Queue
	postgresReview       func() ReviewWriter
	postgresIndex        CandidateIndex // Singleton, shared by all callers
	postgresInitialized  bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the cmd layer to avoid import cycles.
func RegisterPostgresBackend(
	store func() ClusterStore,
	queue func() Queue,
	review func() ReviewWriter,
) {
	postgresClusterStore = store
	postgresQueue = queue
	postgresReview = review
	postgresInitialized = true
}

// RegisterCandidateIndex registers the candidate index used to narrow
// admission scans. Passing nil disables it.
func RegisterCandidateIndex(index CandidateIndex) {
	postgresIndex = index
}

// GetCandidateIndex returns the registered candidate index, or nil.
func GetCandidateIndex() CandidateIndex {
	return postgresIndex
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetClusterStore returns a ClusterStore from the PostgreSQL backend
func GetClusterStore(ctx context.Context) (ClusterStore, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresClusterStore == nil {
		return nil, fmt.Errorf("PostgreSQL cluster store not registered")
	}
	return postgresClusterStore(), nil
}

// GetQueue returns the ingestion Queue from the PostgreSQL backend
func GetQueue(ctx context.Context) (Queue, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresQueue == nil {
		return nil, fmt.Errorf("PostgreSQL queue not registered")
	}
	return postgresQueue(), nil
}

// GetReviewWriter returns the review list from the PostgreSQL backend
func GetReviewWriter(ctx context.Context) (ReviewWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresReview == nil {
		return nil, fmt.Errorf("PostgreSQL review list not registered")
	}
	return postgresReview(), nil
}

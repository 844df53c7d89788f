package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/picture"
)

// Member is a cluster member with its centrality score. Seq orders members
// by the moment they joined the cluster.
type Member struct {
	PictureID string
	Score     float64
	Seq       int64
}

// WorkItem is one picture waiting to be admitted
type WorkItem struct {
	ID         int64                 `json:"-"`
	PictureID  string                `json:"picture_id"`
	Bundle     picture.FeatureBundle `json:"feature_bundle"`
	RawRef     string                `json:"raw_ref,omitempty"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

// ErrNotFound is returned when a picture or cluster does not exist
var ErrNotFound = errors.New("not found")

// StoreAccessError wraps a backing store read or write failure
type StoreAccessError struct {
	Op  string
	Err error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreAccessError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a StoreAccessError, or nil. ErrNotFound is
// passed through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var sae *StoreAccessError
	if errors.As(err, &sae) {
		return err
	}
	return &StoreAccessError{Op: op, Err: err}
}

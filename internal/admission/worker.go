package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/database"
)

// DefaultPollInterval is how long an idle worker waits before polling again.
const DefaultPollInterval = time.Second

// ConsistencyWarning reports that the store holds fewer pictures than this
// worker has admitted since it started. It is logged, never returned.
type ConsistencyWarning struct {
	Expected int
	Actual   int
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("store reports %d pictures, expected at least %d", w.Actual, w.Expected)
}

// Admitter admits one queued work item.
type Admitter interface {
	AdmitItem(ctx context.Context, item database.WorkItem) (Admission, error)
}

// Stats counts what a worker has done since it started.
type Stats struct {
	Processed   int `json:"processed"`
	Failed      int `json:"failed"`
	Duplicates  int `json:"duplicates"`
	NewClusters int `json:"new_clusters"`
	Warnings    int `json:"warnings"`
}

// Worker pulls items from the queue and admits them one at a time.
type Worker struct {
	queue    database.Queue
	admitter Admitter
	counter  database.PictureStore
	poll     time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	stats    Stats
	baseline int
	admitted int
	started  bool
}

// NewWorker creates a worker. counter may be nil to skip the consistency
// check.
func NewWorker(queue database.Queue, admitter Admitter, counter database.PictureStore, poll time.Duration, logger *slog.Logger) *Worker {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, admitter: admitter, counter: counter, poll: poll, logger: logger}
}

// Run processes items until ctx is cancelled. Failed items are logged and
// dropped; nothing short of cancellation stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.poll)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "processed", w.Stats().Processed)
			return ctx.Err()
		default:
		}

		worked, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("dequeue failed", "error", err)
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.poll):
		}
	}
}

// ProcessNext admits the next queued item, if any. It reports whether an
// item was taken. Only queue errors are returned; admission errors are
// logged and counted.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	w.initBaseline(ctx)

	item, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if item == nil {
		return false, nil
	}

	start := time.Now()
	res, err := w.admitter.AdmitItem(ctx, *item)

	w.mu.Lock()
	w.stats.Processed++
	switch {
	case err != nil:
		w.stats.Failed++
	case !res.Clustered:
		w.stats.Duplicates++
	default:
		w.admitted++
		if res.NewCluster {
			w.stats.NewClusters++
		}
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("admission failed, item dropped", "picture", item.PictureID, "error", err)
		return true, nil
	}
	w.logger.Debug("item admitted", "picture", item.PictureID, "cluster", res.ClusterID, "duration", time.Since(start))
	w.checkConsistency(ctx)
	return true, nil
}

// Stats returns a copy of the worker counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// initBaseline records the store's picture count once. The count is read
// outside w.mu; the first caller to finish wins.
func (w *Worker) initBaseline(ctx context.Context) {
	if w.counter == nil {
		return
	}
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		return
	}

	n, err := w.counter.CountPictures(ctx)
	if err != nil {
		w.logger.Warn("could not read picture count", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		w.baseline = n
		w.started = true
	}
}

// checkConsistency compares the running count with the store's. Other
// workers may add pictures, so only a shortfall is reported.
func (w *Worker) checkConsistency(ctx context.Context) {
	if w.counter == nil {
		return
	}
	w.mu.Lock()
	started := w.started
	expected := w.baseline + w.admitted
	w.mu.Unlock()
	if !started {
		return
	}

	actual, err := w.counter.CountPictures(ctx)
	if err != nil {
		w.logger.Warn("could not read picture count", "error", err)
		return
	}
	if actual < expected {
		warning := &ConsistencyWarning{Expected: expected, Actual: actual}
		w.mu.Lock()
		w.stats.Warnings++
		w.mu.Unlock()
		w.logger.Warn("consistency check failed", "error", warning)
	}
}

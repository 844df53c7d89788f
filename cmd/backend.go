package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-cluster/internal/admission"
	"github.com/kozaktomas/photo-cluster/internal/centrality"
	"github.com/kozaktomas/photo-cluster/internal/config"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/database/postgres"
	"github.com/kozaktomas/photo-cluster/internal/distance"
)

// backend bundles everything the commands share
type backend struct {
	cfg        *config.Config
	pool       *postgres.Pool
	store      database.ClusterStore
	queue      database.Queue
	review     database.ReviewWriter
	index      *database.HNSWSignatureIndex
	engine     *distance.Engine
	maintainer *centrality.Maintainer
}

// initializePool connects and migrates; tests replace it.
var initializePool = postgres.Initialize

// openBackend loads the configuration, connects to PostgreSQL and registers
// the repositories.
func openBackend() (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	slog.Debug("connecting to PostgreSQL")
	pool, err := initializePool(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	postgres.Register(pool)

	b, err := newBackend(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// newBackend resolves the registered repositories and the distance engine.
func newBackend(cfg *config.Config, pool *postgres.Pool) (*backend, error) {
	ctx := context.Background()
	b := &backend{cfg: cfg, pool: pool}
	var err error
	if b.store, err = database.GetClusterStore(ctx); err != nil {
		return nil, err
	}
	if b.queue, err = database.GetQueue(ctx); err != nil {
		return nil, err
	}
	if b.review, err = database.GetReviewWriter(ctx); err != nil {
		return nil, err
	}

	b.engine, err = distance.NewEngine(cfg.Distance)
	if err != nil {
		return nil, err
	}
	mode := centrality.Mode(cfg.Admission.CentralityMode)
	if mode != centrality.AtomicDelta && mode != centrality.Snapshot {
		return nil, fmt.Errorf("unknown centrality mode %q", mode)
	}
	b.maintainer = centrality.NewMaintainer(b.store, b.engine, centrality.WithMode(mode))
	return b, nil
}

// enableSignatureIndex builds or loads the in-memory HNSW signature index and
// registers it as the candidate index.
func (b *backend) enableSignatureIndex(ctx context.Context) {
	source, ok := b.store.(database.SignatureSource)
	if !ok {
		return
	}
	idx := database.NewHNSWSignatureIndex(source)
	path := b.cfg.Database.SignatureIndexPath
	if path != "" {
		if err := idx.Load(path); err != nil {
			slog.Warn("could not load signature index, rebuilding", "path", path, "error", err)
		}
	}
	if err := idx.Sync(ctx); err != nil {
		slog.Warn("failed to build signature index, candidate pre-filter disabled", "error", err)
		return
	}
	slog.Info("signature index ready", "signatures", idx.Count())
	database.RegisterCandidateIndex(idx)
	b.index = idx
}

// saveSignatureIndex persists the signature index if a path is configured.
func (b *backend) saveSignatureIndex() {
	if b.index == nil || b.cfg.Database.SignatureIndexPath == "" {
		return
	}
	if err := b.index.Save(b.cfg.Database.SignatureIndexPath); err != nil {
		slog.Warn("failed to save signature index", "error", err)
		return
	}
	slog.Info("signature index saved", "path", b.cfg.Database.SignatureIndexPath)
}

// controller builds the admission controller from the configuration.
func (b *backend) controller(ctx context.Context) (*admission.Controller, error) {
	granularity, err := admission.ParseGranularity(b.cfg.Admission.Granularity)
	if err != nil {
		return nil, err
	}
	opts := []admission.Option{admission.WithReview(b.review)}
	if b.cfg.Admission.CandidateK > 0 {
		switch b.cfg.Admission.CandidateIndex {
		case "hnsw":
			b.enableSignatureIndex(ctx)
		case "pgvector":
		default:
			return nil, fmt.Errorf("unknown candidate index %q", b.cfg.Admission.CandidateIndex)
		}
		idx := database.GetCandidateIndex()
		if idx == nil {
			// pgvector nearest-signature query in the store
			idx, _ = b.store.(database.CandidateIndex)
		}
		if idx != nil {
			opts = append(opts, admission.WithCandidateIndex(idx))
		}
	}
	return admission.NewController(b.store, b.engine, b.maintainer, admission.Config{
		MaxDistForNewCluster: b.cfg.Admission.MaxDistForNewCluster,
		Strategy:             b.cfg.Admission.SelectionStrategy,
		Granularity:          granularity,
		CandidateK:           b.cfg.Admission.CandidateK,
	}, opts...)
}

func (b *backend) close() {
	b.saveSignatureIndex()
	b.pool.Close()
}

// runWorker runs an admission worker until ctx is cancelled.
func (b *backend) runWorker(ctx context.Context, ctrl *admission.Controller) {
	worker := admission.NewWorker(b.queue, ctrl, b.store, b.cfg.Worker.PollInterval, slog.Default())
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("admission worker stopped", "error", err)
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/kozaktomas/photo-cluster/internal/admission"
	"github.com/kozaktomas/photo-cluster/internal/fingerprint"
	"github.com/kozaktomas/photo-cluster/internal/photoprism"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var ingestPhotoPrismCmd = &cobra.Command{
	Use:   "ingest-photoprism",
	Short: "Fingerprint pictures from a PhotoPrism library and queue them",
	Long: `Page through a PhotoPrism library, download one thumbnail per photo,
compute its perceptual hashes and enqueue it for admission. The raw
reference of every picture is photoprism:<photo UID>.

Requires PHOTOPRISM_URL, PHOTOPRISM_USERNAME and PHOTOPRISM_PASSWORD.
Videos are skipped.

Examples:
  photo-cluster ingest-photoprism
  photo-cluster ingest-photoprism --query "year:2024" --limit 500
  photo-cluster ingest-photoprism --size tile_500 --drain`,
	Args: cobra.NoArgs,
	RunE: runIngestPhotoPrism,
}

func init() {
	rootCmd.AddCommand(ingestPhotoPrismCmd)

	ingestPhotoPrismCmd.Flags().String("query", "", "PhotoPrism search query, e.g. label:cat or year:2024")
	ingestPhotoPrismCmd.Flags().String("size", "", "Thumbnail size to fingerprint (default PHOTOPRISM_THUMB_SIZE)")
	ingestPhotoPrismCmd.Flags().Int("limit", 0, "Stop after this many photos, 0 for all")
	ingestPhotoPrismCmd.Flags().Int("concurrency", 4, "Number of thumbnails downloaded in parallel")
	ingestPhotoPrismCmd.Flags().Bool("drain", false, "Admit the queued pictures in this process after ingesting")
}

// listLibraryPhotos collects the photos to ingest, skipping videos.
func listLibraryPhotos(ctx context.Context, pp *photoprism.Client, query string, limit int) ([]photoprism.Photo, error) {
	var photos []photoprism.Photo
	err := pp.Walk(ctx, query, 100, func(p photoprism.Photo) error {
		if p.Type == "video" {
			return nil
		}
		photos = append(photos, p)
		if limit > 0 && len(photos) >= limit {
			return photoprism.ErrStop
		}
		return nil
	})
	return photos, err
}

func runIngestPhotoPrism(cmd *cobra.Command, args []string) error {
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ppCfg := b.cfg.PhotoPrism
	if ppCfg.URL == "" {
		return errors.New("PHOTOPRISM_URL is required")
	}
	size := mustGetString(cmd, "size")
	if size == "" {
		size = ppCfg.ThumbSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pp, err := photoprism.New(ctx, ppCfg.URL, ppCfg.Username, ppCfg.Password)
	if err != nil {
		return fmt.Errorf("failed to connect to PhotoPrism: %w", err)
	}
	defer func() {
		if err := pp.Logout(context.Background()); err != nil {
			slog.Warn("PhotoPrism logout failed", "error", err)
		}
	}()

	photos, err := listLibraryPhotos(ctx, pp, mustGetString(cmd, "query"), mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("failed to list photos: %w", err)
	}
	if len(photos) == 0 {
		fmt.Println("No photos found.")
		return nil
	}
	fmt.Printf("Found %d photo(s) to ingest\n", len(photos))

	bar := newProgressBar(len(photos), "Ingesting", "photos")
	extractor := fingerprint.NewExtractor()
	var queued, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, photo := range photos {
		g.Go(func() error {
			defer bar.Add(1)
			ref := "photoprism:" + photo.UID
			data, err := pp.Thumbnail(gctx, photo.Hash, size)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("skipping photo", "uid", photo.UID, "error", err)
				skipped.Add(1)
				return nil
			}
			item, err := fingerprintBytes(extractor, data, ref)
			if err != nil {
				slog.Warn("skipping photo", "uid", photo.UID, "error", err)
				skipped.Add(1)
				return nil
			}
			if err := b.queue.Enqueue(gctx, item); err != nil {
				return fmt.Errorf("enqueue %s: %w", ref, err)
			}
			queued.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("\nQueued %d photo(s), skipped %d\n", queued.Load(), skipped.Load())

	if !mustGetBool(cmd, "drain") {
		return nil
	}
	ctrl, err := b.controller(ctx)
	if err != nil {
		return fmt.Errorf("failed to create admission controller: %w", err)
	}
	worker := admission.NewWorker(b.queue, ctrl, b.store, b.cfg.Worker.PollInterval, slog.Default())
	return drainQueue(ctx, worker)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kozaktomas/photo-cluster/internal/admission"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/kozaktomas/photo-cluster/internal/fingerprint"
	"github.com/kozaktomas/photo-cluster/internal/picture"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path> [path...]",
	Short: "Fingerprint pictures and queue them for admission",
	Long: `Compute the perceptual hashes of every picture found in the given files
or folders and enqueue them for admission. Picture ids are derived from the
file content, so ingesting the same file twice is harmless.

By default only files directly inside a folder are used.
Use -r to search recursively in subdirectories.
Supported formats: jpg, jpeg, png, gif, bmp

Examples:
  photo-cluster ingest /path/to/photos
  photo-cluster ingest -r --concurrency 8 /path/to/photos
  photo-cluster ingest --drain /path/to/photo.jpg   # admit right away`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolP("recursive", "r", false, "Search for pictures recursively in subdirectories")
	ingestCmd.Flags().Int("concurrency", 4, "Number of pictures fingerprinted in parallel")
	ingestCmd.Flags().Bool("drain", false, "Admit the queued pictures in this process after ingesting")
}

// isImageFile checks if a file has an extension the extractor can decode
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp":
		return true
	}
	return false
}

// collectImageFiles expands paths into the image files they contain.
func collectImageFiles(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			if isImageFile(path) {
				files = append(files, path)
			}
			continue
		}

		if recursive {
			err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", path, err)
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}
	return files, nil
}

// fingerprintFile reads a picture from disk and builds its work item.
func fingerprintFile(extractor *fingerprint.Extractor, path string) (database.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return database.WorkItem{}, fmt.Errorf("read %s: %w", path, err)
	}
	return fingerprintBytes(extractor, data, path)
}

// fingerprintBytes builds the work item for raw image bytes found at ref.
func fingerprintBytes(extractor *fingerprint.Extractor, data []byte, ref string) (database.WorkItem, error) {
	bundle, err := extractor.Extract(data)
	if err != nil {
		return database.WorkItem{}, fmt.Errorf("fingerprint %s: %w", ref, err)
	}
	return database.WorkItem{
		PictureID:  picture.IDFromContent(data),
		Bundle:     bundle,
		RawRef:     ref,
		EnqueuedAt: time.Now(),
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	recursive := mustGetBool(cmd, "recursive")
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	files, err := collectImageFiles(args, recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No image files found.")
		return nil
	}
	fmt.Printf("Found %d image(s) to ingest\n", len(files))

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := newProgressBar(len(files), "Ingesting", "pictures")
	extractor := fingerprint.NewExtractor()
	var queued, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, path := range files {
		g.Go(func() error {
			defer bar.Add(1)
			item, err := fingerprintFile(extractor, path)
			if err != nil {
				// One unreadable file should not abort the batch
				slog.Warn("skipping picture", "path", path, "error", err)
				skipped.Add(1)
				return nil
			}
			if err := b.queue.Enqueue(gctx, item); err != nil {
				return fmt.Errorf("enqueue %s: %w", path, err)
			}
			queued.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("\nQueued %d picture(s), skipped %d\n", queued.Load(), skipped.Load())

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

// newProgressBar creates a progress bar in the project's style.
func newProgressBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

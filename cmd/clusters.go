package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/photo-cluster/internal/cluster"
	"github.com/kozaktomas/photo-cluster/internal/database"
	"github.com/spf13/cobra"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Inspect and maintain clusters",
}

var clustersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump every cluster as JSON",
	Long: `Write every cluster with its members and centrality scores as JSON.
With --graph the dump is a node/edge graph suitable for visualization.

Examples:
  photo-cluster clusters export > clusters.json
  photo-cluster clusters export --graph --output graph.json`,
	Args: cobra.NoArgs,
	RunE: runClustersExport,
}

var clustersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load clusters from a JSON dump",
	Long: `Create or replace clusters from a dump written by "clusters export".
Centrality scores are recomputed after loading.`,
	Args: cobra.ExactArgs(1),
	RunE: runClustersImport,
}

var clustersRecomputeCmd = &cobra.Command{
	Use:   "recompute [cluster-id...]",
	Short: "Recompute centrality scores from scratch",
	Long: `Recompute every centrality score of the given clusters. Without
arguments the clusters on the review list are processed; use --all to
recompute the whole store.`,
	RunE: runClustersRecompute,
}

var clustersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cluster statistics",
	Args:  cobra.NoArgs,
	RunE:  runClustersStats,
}

func init() {
	rootCmd.AddCommand(clustersCmd)
	clustersCmd.AddCommand(clustersExportCmd, clustersImportCmd, clustersRecomputeCmd, clustersStatsCmd)

	clustersExportCmd.Flags().Bool("graph", false, "Export as a node/edge graph")
	clustersExportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	clustersRecomputeCmd.Flags().Bool("all", false, "Recompute every cluster")
	clustersRecomputeCmd.Flags().Int("limit", 1000, "Maximum review entries to process")

	clustersStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runClustersExport(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx := context.Background()
	clusters, err := database.LoadClusters(ctx, b.store)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if path := mustGetString(cmd, "output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	if !mustGetBool(cmd, "graph") {
		return cluster.WriteJSON(w, clusters)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cluster.BuildGraph(clusters))
}

func runClustersImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", args[0], err)
	}
	defer f.Close()

	clusters, err := cluster.ReadJSON(f)
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx := context.Background()
	for _, c := range clusters {
		if err := database.CheckMembers(ctx, b.store, c); err != nil {
			return err
		}
	}

	bar := newProgressBar(len(clusters), "Importing", "clusters")
	for _, c := range clusters {
		if err := b.store.SaveCluster(ctx, c); err != nil {
			return fmt.Errorf("save cluster %s: %w", c.ID, err)
		}
		if err := b.maintainer.Recompute(ctx, c.ID); err != nil {
			return fmt.Errorf("recompute cluster %s: %w", c.ID, err)
		}
		_ = bar.Add(1)
	}
	fmt.Printf("\nImported %d cluster(s)\n", len(clusters))
	return nil
}

func runClustersRecompute(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx := context.Background()
	ids := args
	switch {
	case mustGetBool(cmd, "all"):
		if ids, err = b.store.ListClusters(ctx); err != nil {
			return err
		}
	case len(ids) == 0:
		if ids, err = b.review.PopReview(ctx, mustGetInt(cmd, "limit")); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		fmt.Println("Nothing to recompute.")
		return nil
	}

	bar := newProgressBar(len(ids), "Recomputing", "clusters")
	failed := 0
	for _, id := range ids {
		if err := b.maintainer.Recompute(ctx, id); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\nrecompute %s: %v\n", id, err)
		}
		_ = bar.Add(1)
	}
	fmt.Printf("\nRecomputed %d cluster(s), %d failed\n", len(ids)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d cluster(s) failed", failed)
	}
	return nil
}

func runClustersStats(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx := context.Background()
	stats, err := database.ComputeStats(ctx, b.store)
	if err != nil {
		return err
	}
	pending, err := b.queue.Len(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		out := struct {
			*database.StoreStats
			QueueDepth int `json:"queue_depth"`
		}{stats, pending}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Pictures:         %d\n", stats.Pictures)
	fmt.Printf("Clusters:         %d\n", stats.Clusters)
	fmt.Printf("Singletons:       %d\n", stats.Singletons)
	fmt.Printf("Largest cluster:  %d\n", stats.Largest)
	fmt.Printf("Mean size:        %.2f\n", stats.MeanSize)
	fmt.Printf("Queued:           %d\n", pending)
	if !stats.Consistent {
		fmt.Printf("Warning: %d clustered pictures but %d stored\n", stats.Clustered, stats.Pictures)
	}
	return nil
}

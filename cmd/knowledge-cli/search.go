package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/singularity-ai/knowledge-core/internal/hybrid"
)

// newSearchCmd creates the search subcommand.
func newSearchCmd() *cobra.Command {
	var (
		singularity int64
		dimension   int
		layer       int
		limit       uint64
		threshold   float32
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search fragments by semantic similarity",
		Long: `Search embeds the query and returns the closest fragment points,
optionally filtered by singularity, dimension, and layer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := hybrid.SearchRequest{
				Query: args[0],
				Limit: limit,
			}
			if cmd.Flags().Changed("singularity") {
				req.SingularityID = &singularity
			}
			if cmd.Flags().Changed("dimension") {
				req.Dimension = &dimension
			}
			if cmd.Flags().Changed("layer") {
				req.Layer = &layer
			}
			if cmd.Flags().Changed("threshold") {
				req.ScoreThreshold = &threshold
			}

			hits, err := rt.store.Search(ctx, req)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}

			if len(hits) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, hit := range hits {
				text, _ := hit.Payload["payload"].(string)
				if len(text) > 100 {
					text = text[:100] + "..."
				}
				fmt.Printf("%d. [%d] score=%.4f %s\n", i+1, hit.ID, hit.Score, text)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&singularity, "singularity", 0, "filter by singularity id")
	cmd.Flags().IntVar(&dimension, "dimension", 0, "filter by dimension")
	cmd.Flags().IntVar(&layer, "layer", 0, "filter by layer")
	cmd.Flags().Uint64Var(&limit, "limit", 10, "maximum results")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "minimum score")

	return cmd
}

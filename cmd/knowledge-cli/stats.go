package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the stats subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Long:  `Stats reports key counts, vector collections, and catalog size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			keys, err := rt.kv.Count(ctx)
			if err != nil {
				return err
			}
			collections, err := rt.index.ListCollections(ctx)
			if err != nil {
				return err
			}

			resources := int64(-1)
			if rt.catalog != nil {
				resources, err = rt.catalog.CountResources(ctx)
				if err != nil {
					return err
				}
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				out := map[string]any{
					"kvKeys":      keys,
					"collections": collections,
				}
				if resources >= 0 {
					out["catalogResources"] = resources
				}
				return enc.Encode(out)
			}

			fmt.Printf("KV keys: %d\n", keys)
			fmt.Printf("Vector collections: %d\n", len(collections))
			for _, name := range collections {
				fmt.Printf("  - %s\n", name)
			}
			if resources >= 0 {
				fmt.Printf("Catalog resources: %d\n", resources)
			}
			return nil
		},
	}
}

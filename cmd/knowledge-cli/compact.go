package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newCompactCmd creates the compact subcommand.
func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the key-value store",
		Long:  `Compact rewrites the key-value store file to reclaim free pages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			count, err := rt.kv.Count(ctx)
			if err != nil {
				return err
			}
			if err := rt.kv.Compact(ctx); err != nil {
				return fmt.Errorf("compact failed: %w", err)
			}

			if outputJSON {
				fmt.Printf(`{"compacted":true,"keys":%d}`+"\n", count)
				return nil
			}
			color.Green("✓ Compacted %d keys", count)
			return nil
		},
	}
}

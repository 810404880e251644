package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newPointCmd creates the point subcommand group.
func newPointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "point",
		Short: "Inspect and manage individual points",
	}
	cmd.AddCommand(newPointGetCmd())
	cmd.AddCommand(newPointDeleteCmd())
	return cmd
}

func newPointGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a point and its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid point id: %w", err)
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			point, err := rt.store.GetPoint(ctx, id)
			if err != nil {
				return err
			}
			outgoing, err := rt.store.SegmentsFrom(ctx, id)
			if err != nil {
				return err
			}
			incoming, err := rt.store.SegmentsTo(ctx, id)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"point":    point,
					"outgoing": outgoing,
					"incoming": incoming,
				})
			}

			fmt.Printf("Point %d: layer=%d dimension=%d weight=%.3f\n",
				point.ID, point.Layer, point.Dimension, point.Weight)
			if point.SingularityID != nil {
				fmt.Printf("  Singularity: %d\n", *point.SingularityID)
			}
			fmt.Printf("  Outgoing segments: %d\n", len(outgoing))
			for _, seg := range outgoing {
				fmt.Printf("    -> %d (segment %d, weight %.3f)\n", seg.ToID, seg.ID, seg.Weight)
			}
			fmt.Printf("  Incoming segments: %d\n", len(incoming))
			for _, seg := range incoming {
				fmt.Printf("    <- %d (segment %d, weight %.3f)\n", seg.FromID, seg.ID, seg.Weight)
			}
			return nil
		},
	}
}

func newPointDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a point and its vector entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid point id: %w", err)
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.DeletePoint(ctx, id); err != nil {
				return err
			}
			if outputJSON {
				fmt.Printf(`{"deleted":%d}`+"\n", id)
				return nil
			}
			color.Green("✓ Deleted point %d", id)
			return nil
		},
	}
}

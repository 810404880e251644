package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newResourcesCmd creates the resources subcommand group.
func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Inspect the ingestion catalog",
	}
	cmd.AddCommand(newResourcesListCmd())
	cmd.AddCommand(newResourcesGetCmd())
	return cmd
}

func newResourcesListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested resources, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.catalog == nil {
				return fmt.Errorf("no catalog configured")
			}

			records, err := rt.catalog.ListResources(ctx, limit)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No resources ingested.")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%-30s %-6s point=%-8d fragments=%-4d %s\n",
					rec.ResourceID, rec.ParserType, rec.ResourcePointID,
					rec.FragmentCount, rec.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records")
	return cmd
}

func newResourcesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <resource-id>",
		Short: "Show one catalog record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.catalog == nil {
				return fmt.Errorf("no catalog configured")
			}

			rec, err := rt.catalog.GetResource(ctx, args[0])
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			color.Cyan("%s", rec.ResourceID)
			fmt.Printf("  Resource point: %d\n", rec.ResourcePointID)
			fmt.Printf("  Parser: %s\n", rec.ParserType)
			fmt.Printf("  Fragments: %d | Segments: %d\n", rec.FragmentCount, rec.SegmentCount)
			fmt.Printf("  Payload SHA-256: %s\n", rec.PayloadSHA256)
			if rec.SingularityID != nil {
				fmt.Printf("  Singularity: %d\n", *rec.SingularityID)
			}
			fmt.Printf("  Ingested: %s\n", rec.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

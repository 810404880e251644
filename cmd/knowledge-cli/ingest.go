package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/singularity-ai/knowledge-core/internal/ingest"
)

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var (
		resourceID  string
		contentType string
		singularity int64
		user        int64
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest payload files into points and segments",
		Long: `Ingest parses each file, embeds its fragments, and stores one resource
point plus one fragment point per parsed fragment.

The content type is detected from the payload unless --type is given.
With multiple files the resource id is derived from each file name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if resourceID != "" && len(args) > 1 {
				return fmt.Errorf("--resource-id only applies to a single file")
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			var bar *progressbar.ProgressBar
			if !outputJSON && len(args) > 1 {
				bar = progressbar.Default(int64(len(args)), "ingesting")
			}

			var results []map[string]any
			for _, path := range args {
				payload, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				id := resourceID
				if id == "" {
					id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}

				result, err := rt.pipeline.Ingest(ctx, ingest.Request{
					Payload:       string(payload),
					ResourceID:    id,
					ContentType:   contentType,
					SingularityID: optionalID(cmd, "singularity", singularity),
					UserID:        optionalID(cmd, "user", user),
				})
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}

				if bar != nil {
					_ = bar.Add(1)
				}
				results = append(results, map[string]any{
					"resourceId":      id,
					"resourcePointId": result.ResourcePointID,
					"parser":          result.ParserType,
					"fragments":       result.TotalFragments,
					"parsedFragments": result.ParsedFragments,
					"segments":        len(result.SegmentIDs),
				})

				if !outputJSON {
					color.Green("✓ %s", id)
					fmt.Printf("  Resource point: %d | Parser: %s | Fragments: %d/%d | Segments: %d\n",
						result.ResourcePointID, result.ParserType,
						result.TotalFragments, result.ParsedFragments, len(result.SegmentIDs))
					if result.TotalFragments < result.ParsedFragments {
						color.Yellow("  ! %d fragment(s) dropped, see logs", result.ParsedFragments-result.TotalFragments)
					}
				}
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceID, "resource-id", "", "resource id (default: file name without extension)")
	cmd.Flags().StringVar(&contentType, "type", "", "content type (text, json, owl; default: auto)")
	cmd.Flags().Int64Var(&singularity, "singularity", 0, "singularity id to tag points with")
	cmd.Flags().Int64Var(&user, "user", 0, "user id to tag points with")

	return cmd
}

// optionalID returns a pointer only when the flag was set on the command line.
func optionalID(cmd *cobra.Command, name string, v int64) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

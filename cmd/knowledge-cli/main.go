// Package main provides the knowledge core CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/singularity-ai/knowledge-core/internal/cache"
	"github.com/singularity-ai/knowledge-core/internal/catalog"
	"github.com/singularity-ai/knowledge-core/internal/config"
	"github.com/singularity-ai/knowledge-core/internal/embedding"
	"github.com/singularity-ai/knowledge-core/internal/hybrid"
	"github.com/singularity-ai/knowledge-core/internal/ingest"
	"github.com/singularity-ai/knowledge-core/internal/kv"
	"github.com/singularity-ai/knowledge-core/internal/observability"
	"github.com/singularity-ai/knowledge-core/internal/parse"
	"github.com/singularity-ai/knowledge-core/internal/vector"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "knowledge-cli",
	Short: "Knowledge core CLI for ingestion, search, and administration",
	Long: `Knowledge core CLI manages the hybrid point store.

Use this tool to:
- Ingest text, JSON, and OWL payloads into points and segments
- Search fragments by semantic similarity with metadata filters
- Inspect points, segments, and the ingestion catalog
- Compact the key-value store

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional and only feeds the env overrides below.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := cfg.Observability.LogFormat
		if outputJSON {
			logFormat = "json"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      logFormat,
			ServiceName: "knowledge-cli",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newPointCmd())
	rootCmd.AddCommand(newResourcesCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newCompactCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles the wired components behind the commands.
type runtime struct {
	kv       kv.Store
	index    vector.Index
	store    *hybrid.Store
	pipeline *ingest.Pipeline
	catalog  *catalog.Catalog

	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// openRuntime wires the full stack from configuration. The spinner keeps
// slow remote connections visible on interactive terminals.
func openRuntime(ctx context.Context) (*runtime, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " connecting"
	if !outputJSON {
		sp.Start()
		defer sp.Stop()
	}

	r := &runtime{}

	switch cfg.KV.Driver {
	case "bolt":
		store, err := kv.OpenBolt(kv.BoltConfig{Path: cfg.KV.Path, Timeout: cfg.KV.Timeout})
		if err != nil {
			return nil, fmt.Errorf("open kv store: %w", err)
		}
		r.kv = store
	default:
		r.kv = kv.NewMemoryStore()
	}
	r.closers = append(r.closers, func() error { return r.kv.Close() })

	switch cfg.Vector.Adapter {
	case "qdrant":
		index, err := vector.NewQdrantIndex(vector.QdrantConfig{
			Host:   cfg.Vector.Qdrant.Host,
			Port:   cfg.Vector.Qdrant.Port,
			APIKey: cfg.Vector.Qdrant.APIKey,
			UseTLS: cfg.Vector.Qdrant.UseTLS,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		r.index = index
	default:
		logger.Warn().Msg("using in-memory vector index, data will not persist")
		r.index = vector.NewMemoryIndex()
	}
	r.closers = append(r.closers, func() error { return r.index.Close() })

	// Only the mock provider is wired; vectors are deterministic but not
	// semantically meaningful.
	logger.Warn().Int("dimension", cfg.Embedding.Dimension).Msg("using mock embedding provider")
	var provider embedding.Provider = embedding.NewMock(cfg.Embedding.Dimension)

	if cfg.Embedding.CacheHits {
		var bytes cache.ByteCache
		if cfg.Cache.Driver == "redis" {
			rc, err := cache.NewRedisCache(cache.RedisConfig{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
				Prefix:   cfg.Cache.Redis.Prefix,
			})
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			r.closers = append(r.closers, rc.Close)
			bytes = rc
		} else {
			bytes = cache.NewMemoryByteCache()
		}
		provider = embedding.NewCached(provider, bytes, cfg.Cache.TTL, logger)
	}

	store, err := hybrid.NewStore(ctx, hybrid.Config{
		Collection:    cfg.Hybrid.Collection,
		VectorSize:    cfg.Hybrid.VectorSize,
		Distance:      vector.Distance(cfg.Hybrid.Distance),
		EmbeddingType: cfg.Hybrid.EmbeddingType,
	}, r.kv, r.index, provider, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := store.EnsureCollection(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	store.UseQueryCache(cache.New(logger), cfg.Cache.TTL)
	r.store = store

	var recorder ingest.Recorder
	if cfg.Catalog.Driver != "" {
		cat, db, err := catalog.Open(ctx, cfg.Catalog.Driver, cfg.Catalog.DSN)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		r.closers = append(r.closers, db.Close)
		r.catalog = cat
		recorder = cat
	}

	registry := parse.NewRegistry(
		parse.NewOWLParser(),
		parse.NewJSONParser(parse.JSONConfig{
			MaxDepth:      cfg.Parsing.JSON.MaxDepth,
			IncludeArrays: cfg.Parsing.JSON.IncludeArrays,
		}),
		parse.NewTextParser(parse.TextConfig{
			MinParagraphLength: cfg.Parsing.Text.MinParagraphLength,
			MaxParagraphLength: cfg.Parsing.Text.MaxParagraphLength,
		}),
	)
	r.pipeline = ingest.NewPipeline(registry, store, provider, recorder,
		ingest.Config{EmbeddingType: cfg.Hybrid.EmbeddingType}, logger)

	return r, nil
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				fmt.Println(`{"version":"0.1.0"}`)
				return
			}
			fmt.Println("knowledge-cli v0.1.0")
		},
	}
}

// Package ingest materializes parsed payloads as a resource Point with
// linked fragment Points inside the hybrid store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/singularity-ai/knowledge-core/internal/catalog"
	"github.com/singularity-ai/knowledge-core/internal/embedding"
	"github.com/singularity-ai/knowledge-core/internal/hybrid"
	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
	"github.com/singularity-ai/knowledge-core/internal/observability"
	"github.com/singularity-ai/knowledge-core/internal/parse"
)

// Request is one ingestion call.
type Request struct {
	Payload       string
	ResourceID    string
	ContentType   string // text, json, owl, or auto; empty means auto
	SingularityID *int64
	UserID        *int64
	Metadata      map[string]any
}

// Result reports what was stored. TotalFragments below ParsedFragments
// means the run completed partially: the resource Point exists and some
// fragments were dropped.
type Result struct {
	ResourcePointID  int64
	FragmentPointIDs []int64
	SegmentIDs       []int64
	ParserType       string
	TotalFragments   int
	ParsedFragments  int
}

// Recorder is the catalog write the pipeline performs after a run.
type Recorder interface {
	RecordIngestion(ctx context.Context, rec catalog.Record) error
}

// Config holds pipeline settings.
type Config struct {
	EmbeddingType string

	// FragmentWeight maps a fragment's parse order to its point weight.
	// Nil selects the 1/(order+1) decay.
	FragmentWeight func(order int) float64
}

// Pipeline wires parser selection, batch embedding, and hybrid-store
// materialization. Parsing and embedding are pure and fail fast; the
// write phase tolerates per-fragment failures.
type Pipeline struct {
	registry *parse.Registry
	store    *hybrid.Store
	provider embedding.Provider
	recorder Recorder
	cfg      Config
	logger   *observability.Logger
}

// NewPipeline creates the pipeline. recorder may be nil when no catalog
// is configured.
func NewPipeline(registry *parse.Registry, store *hybrid.Store, provider embedding.Provider, recorder Recorder, cfg Config, logger *observability.Logger) *Pipeline {
	if cfg.EmbeddingType == "" {
		cfg.EmbeddingType = "fragment"
	}
	if cfg.FragmentWeight == nil {
		cfg.FragmentWeight = func(order int) float64 { return 1.0 / float64(order+1) }
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		registry: registry,
		store:    store,
		provider: provider,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.WithComponent("ingest"),
	}
}

// Ingest runs the full parse, embed, materialize sequence for one payload.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Payload == "" {
		return nil, kgerrors.Invalid("payload is required")
	}
	if req.ResourceID == "" {
		return nil, kgerrors.Invalid("resourceId is required")
	}

	// Step 1: parser selection.
	parser, err := p.registry.Resolve(req.ContentType, req.Payload)
	if err != nil {
		return nil, err
	}

	// Step 2: parsing. No writes have happened yet.
	parsed, err := parser.Parse(req.Payload, req.ResourceID, req.Metadata)
	if err != nil {
		return nil, err
	}
	if len(parsed.Fragments) == 0 {
		return nil, fmt.Errorf("%w: parser %q produced no fragments for %q", kgerrors.ErrEmptyParse, parser.ContentType(), req.ResourceID)
	}

	// Step 3: one embedding batch in parse order.
	texts := make([]string, len(parsed.Fragments))
	for i, f := range parsed.Fragments {
		texts[i] = f.Content
	}
	embeddings, err := p.provider.EmbedBatch(ctx, p.cfg.EmbeddingType, texts)
	if err != nil {
		return nil, kgerrors.Upstream("embedding", err)
	}
	if len(embeddings) != len(parsed.Fragments) {
		return nil, fmt.Errorf("%w: got %d vectors for %d fragments", kgerrors.ErrEmbeddingMismatch, len(embeddings), len(parsed.Fragments))
	}

	// Step 4: resource Point. A failure here aborts the request.
	resourceID, err := p.store.AddPoint(ctx, nil, hybrid.Point{
		Dimension:     0,
		Layer:         0,
		Weight:        1.0,
		SingularityID: req.SingularityID,
		UserID:        req.UserID,
		Payload:       fmt.Sprintf("Resource: %s (%s) with %d fragments", req.ResourceID, parser.ContentType(), len(parsed.Fragments)),
	}, nil)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ResourcePointID:  resourceID,
		FragmentPointIDs: []int64{},
		SegmentIDs:       []int64{},
		ParserType:       parser.ContentType(),
		ParsedFragments:  len(parsed.Fragments),
	}

	// Step 5: fragment Points, each linked from the resource. Failures
	// are tolerated per fragment.
	for i, fragment := range parsed.Fragments {
		pointID, err := p.store.AddPoint(ctx, &resourceID, hybrid.Point{
			Dimension:     1,
			Layer:         0,
			Weight:        p.cfg.FragmentWeight(fragment.Order),
			SingularityID: req.SingularityID,
			UserID:        req.UserID,
			Payload:       fragment.Content,
		}, embeddings[i])
		if err != nil {
			if pointID == 0 {
				p.logger.Warn().Err(err).
					Str("resource_id", req.ResourceID).
					Int("fragment_order", fragment.Order).
					Msg("fragment store failed, skipping")
				continue
			}
			// The point landed but the linking segment did not.
			p.logger.Warn().Err(err).
				Str("resource_id", req.ResourceID).
				Int64("point_id", pointID).
				Msg("fragment stored without linking segment")
			result.FragmentPointIDs = append(result.FragmentPointIDs, pointID)
			continue
		}
		result.FragmentPointIDs = append(result.FragmentPointIDs, pointID)
		if seg, err := p.store.GetSegment(ctx, resourceID, pointID); err == nil {
			result.SegmentIDs = append(result.SegmentIDs, seg.ID)
		}
	}
	result.TotalFragments = len(result.FragmentPointIDs)

	// Step 6: best-effort catalog record.
	if p.recorder != nil {
		sum := sha256.Sum256([]byte(req.Payload))
		rec := catalog.Record{
			ResourceID:      req.ResourceID,
			ResourcePointID: resourceID,
			ParserType:      result.ParserType,
			FragmentCount:   result.TotalFragments,
			SegmentCount:    len(result.SegmentIDs),
			PayloadSHA256:   hex.EncodeToString(sum[:]),
			SingularityID:   req.SingularityID,
		}
		if err := p.recorder.RecordIngestion(ctx, rec); err != nil {
			p.logger.Warn().Err(err).Str("resource_id", req.ResourceID).Msg("catalog record failed")
		}
	}

	p.logger.Info().
		Str("resource_id", req.ResourceID).
		Str("parser", result.ParserType).
		Int64("resource_point_id", resourceID).
		Int("fragments", result.TotalFragments).
		Msg("ingestion complete")
	return result, nil
}

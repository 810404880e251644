// Package parse turns raw payloads into ordered content fragments. A
// parser is pure: no fragment store writes happen here.
package parse

import (
	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// ContentFragment is one parser output unit. Order is monotone in parse
// order starting at 0. ParentKey is a parser-defined path of the
// enclosing container for hierarchical payloads.
type ContentFragment struct {
	Content   string
	Type      string
	Order     int
	ParentKey string
	Metadata  map[string]any
}

// ParsedResource is the transient product of one parse.
type ParsedResource struct {
	ResourceID   string
	ResourceType string
	Metadata     map[string]any
	Fragments    []ContentFragment
}

// Parser is the capability every payload parser provides.
type Parser interface {
	// ContentType is the registry name, e.g. "text".
	ContentType() string
	// CanParse is a cheap probe used by auto-detection.
	CanParse(payload string) bool
	// Parse produces the ordered fragment list.
	Parse(payload, resourceID string, metadata map[string]any) (*ParsedResource, error)
}

// Registry resolves parsers by content type. Auto-detection probes
// CanParse in registration order, so register the most specific parsers
// first.
type Registry struct {
	ordered []Parser
	byType  map[string]Parser
}

// NewRegistry builds a registry over the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byType: make(map[string]Parser, len(parsers))}
	for _, p := range parsers {
		r.ordered = append(r.ordered, p)
		r.byType[p.ContentType()] = p
	}
	return r
}

// DefaultRegistry returns the standard parser set. The text parser
// probes last: it accepts nearly everything above its minimum length.
func DefaultRegistry() *Registry {
	return NewRegistry(NewOWLParser(), NewJSONParser(JSONConfig{}), NewTextParser(TextConfig{}))
}

// Resolve picks the parser for contentType; "auto" probes CanParse in
// registration order.
func (r *Registry) Resolve(contentType, payload string) (Parser, error) {
	if contentType == "" || contentType == "auto" {
		for _, p := range r.ordered {
			if p.CanParse(payload) {
				return p, nil
			}
		}
		return nil, kgerrors.ErrParserNotApplicable
	}

	p, ok := r.byType[contentType]
	if !ok {
		return nil, kgerrors.NotFound("parser", contentType)
	}
	if !p.CanParse(payload) {
		return nil, kgerrors.ErrParserNotApplicable
	}
	return p, nil
}

// Types lists the registered content types in registration order.
func (r *Registry) Types() []string {
	types := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		types[i] = p.ContentType()
	}
	return types
}

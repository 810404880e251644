// Package kgerrors defines the error taxonomy shared by the knowledge core.
//
// Every failure surfaced across a component boundary wraps exactly one of
// the sentinels below, so callers can classify with errors.Is without
// depending on the failing component.
package kgerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers missing required fields, empty payloads,
	// malformed JSON/XML, and unsupported content types.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers a point, segment, collection, or parser that is
	// not present.
	ErrNotFound = errors.New("not found")

	// ErrParserNotApplicable is returned when no registered parser accepts
	// a payload.
	ErrParserNotApplicable = errors.New("parser not applicable")

	// ErrUpstreamFailure covers transport errors from the KV store, the
	// vector index, or the embedding provider.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrInconsistency signals an observable violation of a store
	// invariant, e.g. a half-written segment.
	ErrInconsistency = errors.New("store inconsistency")

	// ErrEmbeddingMismatch is returned when the embedding provider answers
	// with a vector count different from the request.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")

	// ErrEmptyParse is returned when a parser produced no fragments.
	ErrEmptyParse = errors.New("empty parse")
)

// Invalid wraps ErrInvalidInput with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the kind and identifier that was missed.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, kind, id)
}

// Upstream wraps a transport error with the failing component name.
func Upstream(component string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamFailure, component, err)
}

// Inconsistent wraps ErrInconsistency with the offending KV key so
// operators can triage the half-written record.
func Inconsistent(key string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrInconsistency, key, err)
	}
	return fmt.Errorf("%w: key %q", ErrInconsistency, key)
}

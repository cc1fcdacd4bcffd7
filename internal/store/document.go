// Package store is the experiment-tracking document store.
//
// Documents (observations, experiments, artifacts, trials, models) live in
// typed collections backed by JSONL tables; their binary content lives in a
// shared blob store and is referenced through content envelopes. A [Registry]
// built once at process start owns every collection plus the favorites and
// timeseries tables, and implements the cascading delete that keeps blob and
// bookmark ownership consistent.
package store

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/content"
)

var (
	// ErrNotFound is returned when an id does not resolve to a stored document.
	ErrNotFound = errors.New("document not found")
	// ErrInvariantViolation is returned when an update tries to change an
	// immutable field (id, created).
	ErrInvariantViolation = errors.New("immutable field changed")
	// ErrUnknownCollection is returned for collection names absent from the
	// registry configuration.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Document is one stored record: arbitrary metadata, a tag set and typed
// binary content.
type Document struct {
	ID         ksid.ID                     `json:"_id" jsonschema:"description=Unique document identifier"`
	Name       string                      `json:"name,omitempty" jsonschema:"description=Human-readable document name"`
	Attributes map[string]any              `json:"attributes" jsonschema:"description=Arbitrary caller-supplied metadata"`
	Content    map[string]content.Envelope `json:"content" jsonschema:"description=Typed binary content by role"`
	Tags       []string                    `json:"tags" jsonschema:"description=Deduplicated label set"`
	Owner      ksid.ID                     `json:"owner,omitzero" jsonschema:"description=Parent document for owned records"`
	Created    time.Time                   `json:"created" jsonschema:"description=Creation timestamp, immutable"`
	Modified   time.Time                   `json:"modified,omitzero" jsonschema:"description=Last mutation timestamp"`
}

// GetID returns the document's ID.
func (d *Document) GetID() ksid.ID {
	return d.ID
}

// Validate checks that the document is storable.
func (d *Document) Validate() error {
	if d.ID.IsZero() {
		return errIDRequired
	}
	if d.Created.IsZero() {
		return errCreatedRequired
	}
	return nil
}

// Clone returns a deep copy. Envelope payloads are carried over by reference;
// they are transient and drained on persist.
func (d *Document) Clone() *Document {
	c := *d
	if d.Attributes != nil {
		c.Attributes = deepCopyValue(d.Attributes).(map[string]any)
	}
	c.Content = maps.Clone(d.Content)
	c.Tags = slices.Clone(d.Tags)
	return &c
}

var (
	errIDRequired      = errors.New("document id is required")
	errCreatedRequired = errors.New("document creation timestamp is required")
)

// deepCopyValue copies the JSON-compatible subset of values. Anything else
// was already reduced by content.SanitizeAttributes.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}

// normalizeTags reduces tags to a sorted, deduplicated set.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

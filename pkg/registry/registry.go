// Package registry tracks the organically grown vocabulary of the graph:
// which relation types exist and which attribute keys person documents use.
// It also hosts the consistency guard, which warns (and only warns) when new
// vocabulary looks like a near-duplicate of existing vocabulary.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/kinship/pkg/driver"
)

// DefaultSampleSize is how many person documents PersonSchema inspects when
// no sample size is configured.
const DefaultSampleSize = 25

// Registry answers schema questions by sampling the live store. Nothing is
// cached: the schema is whatever the data says it is right now.
type Registry struct {
	driver     driver.GraphDriver
	logger     *slog.Logger
	sampleSize int
}

// New creates a registry over the given driver.
func New(drv driver.GraphDriver, logger *slog.Logger, sampleSize int) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Registry{
		driver:     drv,
		logger:     logger,
		sampleSize: sampleSize,
	}
}

// RelationTypes returns the distinct fact types present in the store,
// sorted. An empty graph yields an empty slice, not an error.
func (r *Registry) RelationTypes(ctx context.Context) ([]string, error) {
	relationTypes, err := r.driver.ListRelationTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list relation types: %w", err)
	}
	if relationTypes == nil {
		relationTypes = []string{}
	}
	return relationTypes, nil
}

// PersonSchema samples person documents and returns a map of attribute key
// to one example value per key. The result is advisory: absence of a key
// means no sampled person used it, not that the key is invalid.
func (r *Registry) PersonSchema(ctx context.Context) (map[string]any, error) {
	persons, err := r.driver.SamplePersons(ctx, r.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sample persons: %w", err)
	}

	schema := map[string]any{}
	for _, p := range persons {
		if _, seen := schema["name"]; !seen {
			schema["name"] = p.Name
		}
		for key, value := range p.Data {
			if _, seen := schema[key]; !seen {
				schema[key] = value
			}
		}
	}
	return schema, nil
}

// AdviseFactType logs a warning when factType is a near-duplicate of an
// existing relation type ("parentOf" vs "parent_of"). It never blocks the
// write; vocabulary choice belongs to the caller.
func (r *Registry) AdviseFactType(ctx context.Context, factType string) {
	existing, err := r.driver.ListRelationTypes(ctx)
	if err != nil {
		r.logger.Debug("skipping fact type advice", "error", err)
		return
	}

	want := normalize(factType)
	for _, t := range existing {
		if t != factType && normalize(t) == want {
			r.logger.Warn("fact type resembles an existing relation type",
				"new_type", factType, "existing_type", t)
			return
		}
	}
}

// AdvisePersonKeys logs a warning for each attribute key that is a
// near-duplicate of a key already present in sampled person documents.
func (r *Registry) AdvisePersonKeys(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}

	schema, err := r.PersonSchema(ctx)
	if err != nil {
		r.logger.Debug("skipping person key advice", "error", err)
		return
	}

	for _, key := range keys {
		want := normalize(key)
		for existing := range schema {
			if existing != key && normalize(existing) == want {
				r.logger.Warn("person attribute key resembles an existing key",
					"new_key", key, "existing_key", existing)
				break
			}
		}
	}
}

// normalize folds case and separator differences so "parentOf", "parent_of",
// and "parent-of" compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

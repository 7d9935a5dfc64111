package driver

import (
	"context"
	"errors"
	"time"

	"github.com/soundprediction/kinship/pkg/types"
)

// GraphProvider represents the type of storage backend.
type GraphProvider string

const (
	GraphProviderSQLite GraphProvider = "sqlite"
	GraphProviderNeo4j  GraphProvider = "neo4j"
	GraphProviderBadger GraphProvider = "badger"
	GraphProviderMemory GraphProvider = "memory"
)

// Storage errors. The API layer re-exports these so callers never need to
// import the driver package directly.
var (
	ErrPersonNotFound = errors.New("person not found")
	ErrRuleNotFound   = errors.New("rule not found")
)

// GraphDriver defines the interface for relationship graph storage.
//
// Person rows are keyed by ID; UpsertPerson replaces the stored row, so
// callers that want document merging read, merge, and write back. Facts are
// append-only: there is no fact update or delete short of Clear. Rules are
// keyed by name and UpsertRule replaces any previous body.
type GraphDriver interface {
	// Person operations
	UpsertPerson(ctx context.Context, person *types.Person) error
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error)
	ListPersons(ctx context.Context) ([]*types.Person, error)
	SamplePersons(ctx context.Context, limit int) ([]*types.Person, error)

	// Fact operations
	InsertFact(ctx context.Context, fact *types.Fact) error
	ListFacts(ctx context.Context) ([]*types.Fact, error)
	ListRelationTypes(ctx context.Context) ([]string, error)

	// Rule operations
	UpsertRule(ctx context.Context, rule *types.Rule) error
	GetRule(ctx context.Context, name string) (*types.Rule, error)
	ListRules(ctx context.Context) ([]*types.Rule, error)

	// Maintenance
	GetStats(ctx context.Context) (*GraphStats, error)
	CreateIndices(ctx context.Context) error
	Clear(ctx context.Context) error
	Close() error
	Provider() GraphProvider
}

// GraphStats holds statistics about the stored graph.
type GraphStats struct {
	PersonCount   int64            `json:"person_count"`
	FactCount     int64            `json:"fact_count"`
	RuleCount     int64            `json:"rule_count"`
	FactsByType   map[string]int64 `json:"facts_by_type"`
	LastRetrieved time.Time        `json:"last_retrieved"`
}

package kinship

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/datalog"
	"github.com/soundprediction/kinship/pkg/driver"
	"github.com/soundprediction/kinship/pkg/registry"
	"github.com/soundprediction/kinship/pkg/rules"
	"github.com/soundprediction/kinship/pkg/types"
)

var (
	// ErrInvalidJSON is returned when a document string is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON document")
	// ErrAmbiguousName is returned when a person name matches more than one
	// stored person. Callers must retry with an explicit ID.
	ErrAmbiguousName = errors.New("ambiguous person name")
	// ErrPersonNotFound is returned when a person lookup matches nothing.
	ErrPersonNotFound = driver.ErrPersonNotFound
	// ErrRuleNotFound is returned when a named rule does not exist.
	ErrRuleNotFound = driver.ErrRuleNotFound
)

// Kinship is the main interface for interacting with the relationship graph.
// It covers writes, rule management, querying, and the schema registry.
type Kinship interface {
	// AddPerson creates a person with a fresh ID. dataJSON is an optional
	// JSON object of open-ended attributes; "" means no attributes.
	AddPerson(ctx context.Context, name, dataJSON string) (*types.Person, error)

	// UpdatePerson merges dataJSON into an existing person's document.
	// Top-level keys overwrite; keys absent from dataJSON are kept.
	UpdatePerson(ctx context.Context, id, dataJSON string) (*types.Person, error)

	// GetPerson retrieves a person by ID.
	GetPerson(ctx context.Context, id string) (*types.Person, error)

	// AddFact records a directed relationship between two persons referenced
	// by name. Names that match zero or more than one person fail the call.
	AddFact(ctx context.Context, fromName, toName, relType, dataJSON string) (*types.Fact, error)

	// AddRule registers a named Datalog rule, replacing any previous body
	// under the same name. The body is stored verbatim.
	AddRule(ctx context.Context, name, body, description string) error

	// GetRule retrieves a stored rule by name.
	GetRule(ctx context.Context, name string) (*types.Rule, error)

	// ListRules retrieves every stored rule, sorted by name.
	ListRules(ctx context.Context) ([]*types.Rule, error)

	// RunQuery evaluates a Datalog query against the graph together with
	// every stored rule.
	RunQuery(ctx context.Context, query string) (*datalog.Result, error)

	// RelationTypes returns the distinct fact types present in the graph.
	RelationTypes(ctx context.Context) ([]string, error)

	// PersonSchema samples person documents and returns attribute keys with
	// one example value each.
	PersonSchema(ctx context.Context) (map[string]any, error)

	// ClearGraph removes all persons, facts, and rules.
	ClearGraph(ctx context.Context) error

	// CreateIndices creates store indices and constraints.
	CreateIndices(ctx context.Context) error

	// Stats reports entity counts for the graph.
	Stats(ctx context.Context) (*driver.GraphStats, error)

	// Close closes the underlying store.
	Close(ctx context.Context) error
}

// Client is the main implementation of the Kinship interface.
type Client struct {
	driver   driver.GraphDriver
	registry *registry.Registry
	rules    *rules.Manager
	executor *datalog.Executor
	config   *config.Config
	logger   *slog.Logger
}

var _ Kinship = (*Client)(nil)

// NewClient creates a client over the given driver. A nil config uses
// defaults; a nil logger uses slog.Default.
func NewClient(drv driver.GraphDriver, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if drv == nil {
		return nil, errors.New("driver must not be nil")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.Engine.QueryTimeout) * time.Second
	client := &Client{
		driver:   drv,
		registry: registry.New(drv, logger, cfg.Engine.SchemaSampleSize),
		rules:    rules.NewManager(drv, logger),
		executor: datalog.NewExecutor(timeout, logger),
		config:   cfg,
		logger:   logger,
	}

	if path := cfg.Engine.RulesSeedPath; path != "" {
		if err := client.rules.SeedFromFile(context.Background(), path); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// GetDriver returns the underlying graph driver.
func (c *Client) GetDriver() driver.GraphDriver {
	return c.driver
}

// Close closes the underlying store.
func (c *Client) Close(_ context.Context) error {
	return c.driver.Close()
}

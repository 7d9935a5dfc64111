package kinship

import (
	"context"
	"fmt"

	"github.com/soundprediction/kinship/pkg/datalog"
)

// RunQuery evaluates a Datalog query against the current graph plus every
// stored rule. One broken rule anywhere in the store fails the call; the
// error names the problem so the offending rule can be re-registered.
func (c *Client) RunQuery(ctx context.Context, query string) (*datalog.Result, error) {
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.executor.Run(ctx, snapshot, query)
	if err != nil {
		return nil, err
	}

	c.logger.Info("query answered", "rows", len(result.Rows), "duration", result.Duration)
	return result, nil
}

// snapshot reads the whole graph for one evaluation. The store is small by
// construction (one person's social world) so full materialization beats
// incremental reads for consistency.
func (c *Client) snapshot(ctx context.Context) (datalog.Snapshot, error) {
	persons, err := c.driver.ListPersons(ctx)
	if err != nil {
		return datalog.Snapshot{}, fmt.Errorf("failed to load persons: %w", err)
	}
	facts, err := c.driver.ListFacts(ctx)
	if err != nil {
		return datalog.Snapshot{}, fmt.Errorf("failed to load facts: %w", err)
	}
	rules, err := c.rules.Gather(ctx)
	if err != nil {
		return datalog.Snapshot{}, err
	}

	return datalog.Snapshot{Persons: persons, Facts: facts, Rules: rules}, nil
}

// RelationTypes returns the distinct fact types present in the graph,
// sorted. An empty graph yields an empty slice.
func (c *Client) RelationTypes(ctx context.Context) ([]string, error) {
	return c.registry.RelationTypes(ctx)
}

// PersonSchema samples person documents and returns each attribute key with
// one example value. Advisory only; any key may appear on any person.
func (c *Client) PersonSchema(ctx context.Context) (map[string]any, error) {
	return c.registry.PersonSchema(ctx)
}

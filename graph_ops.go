package kinship

import (
	"context"
	"fmt"

	"github.com/soundprediction/kinship/pkg/driver"
)

// ClearGraph removes all persons, facts, and rules from the store.
func (c *Client) ClearGraph(ctx context.Context) error {
	if err := c.driver.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	c.logger.Warn("graph cleared")
	return nil
}

// CreateIndices creates store indices and constraints. Safe to call more
// than once.
func (c *Client) CreateIndices(ctx context.Context) error {
	if err := c.driver.CreateIndices(ctx); err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}
	c.logger.Info("indices created", "provider", c.driver.Provider())
	return nil
}

// Stats reports entity counts for the graph.
func (c *Client) Stats(ctx context.Context) (*driver.GraphStats, error) {
	stats, err := c.driver.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph stats: %w", err)
	}
	return stats, nil
}

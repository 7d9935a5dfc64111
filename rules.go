package kinship

import (
	"context"

	"github.com/soundprediction/kinship/pkg/types"
)

// AddRule registers a named Datalog rule. The body is stored verbatim and
// only parsed when a query runs; registering a rule with forward references
// is allowed and fails nothing until queried.
func (c *Client) AddRule(ctx context.Context, name, body, description string) error {
	return c.rules.Save(ctx, name, body, description)
}

// GetRule retrieves a stored rule by name.
func (c *Client) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	return c.rules.Get(ctx, name)
}

// ListRules retrieves every stored rule, sorted by name.
func (c *Client) ListRules(ctx context.Context) ([]*types.Rule, error) {
	return c.rules.List(ctx)
}

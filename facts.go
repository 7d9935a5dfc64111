package kinship

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundprediction/kinship/pkg/types"
)

// AddFact records a directed relationship between two persons referenced by
// display name. Either endpoint matching zero or several persons fails the
// whole call; no fact is written. Symmetric relations are stored once in the
// asserted direction and matched both ways by the undirected/3 predicate at
// query time.
func (c *Client) AddFact(ctx context.Context, fromName, toName, relType, dataJSON string) (*types.Fact, error) {
	from, err := c.resolvePersonByName(ctx, strings.TrimSpace(fromName))
	if err != nil {
		return nil, err
	}
	to, err := c.resolvePersonByName(ctx, strings.TrimSpace(toName))
	if err != nil {
		return nil, err
	}

	data, err := c.parseDocument(dataJSON)
	if err != nil {
		return nil, err
	}

	fact := &types.Fact{
		FromID: from.ID,
		ToID:   to.ID,
		Type:   strings.TrimSpace(relType),
		Data:   data,
	}
	if err := fact.Validate(); err != nil {
		return nil, err
	}

	c.registry.AdviseFactType(ctx, fact.Type)

	if err := c.driver.InsertFact(ctx, fact); err != nil {
		return nil, fmt.Errorf("failed to add fact %s: %w", fact.Type, err)
	}

	c.logger.Info("fact persisted",
		"type", fact.Type, "from", from.Name, "to", to.Name)
	return fact, nil
}

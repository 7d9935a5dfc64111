package kinship

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/kinship/pkg/types"
)

// AddPerson creates a person with a fresh ID. Names are not unique; two
// persons may share one, which is exactly when fact writes by name start
// demanding IDs.
func (c *Client) AddPerson(ctx context.Context, name, dataJSON string) (*types.Person, error) {
	person := &types.Person{
		ID:   uuid.New().String(),
		Name: strings.TrimSpace(name),
	}

	data, err := c.parseDocument(dataJSON)
	if err != nil {
		return nil, err
	}
	person.Data = data

	if err := person.Validate(); err != nil {
		return nil, err
	}

	c.registry.AdvisePersonKeys(ctx, documentKeys(data))

	if err := c.driver.UpsertPerson(ctx, person); err != nil {
		return nil, fmt.Errorf("failed to add person %s: %w", person.Name, err)
	}

	c.logger.Info("person persisted", "id", person.ID, "name", person.Name)
	return person, nil
}

// UpdatePerson merges dataJSON into the stored document. Top-level keys from
// dataJSON win; everything else survives. A key set to null is stored as
// null, not removed.
func (c *Client) UpdatePerson(ctx context.Context, id, dataJSON string) (*types.Person, error) {
	person, err := c.driver.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := c.parseDocument(dataJSON)
	if err != nil {
		return nil, err
	}

	c.registry.AdvisePersonKeys(ctx, documentKeys(data))
	person.MergeData(data)

	if err := c.driver.UpsertPerson(ctx, person); err != nil {
		return nil, fmt.Errorf("failed to update person %s: %w", id, err)
	}

	c.logger.Info("person updated", "id", person.ID, "keys", len(data))
	return person, nil
}

// GetPerson retrieves a person by ID.
func (c *Client) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	return c.driver.GetPerson(ctx, id)
}

// resolvePersonByName maps a display name to exactly one stored person.
// Zero matches and multiple matches are both hard failures; writing a fact
// against the wrong namesake is worse than asking the caller again.
func (c *Client) resolvePersonByName(ctx context.Context, name string) (*types.Person, error) {
	matches, err := c.driver.GetPersonsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up person %q: %w", name, err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no person named %q: %w", name, ErrPersonNotFound)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, p := range matches {
			ids[i] = p.ID
		}
		return nil, fmt.Errorf("%d persons named %q (ids %s): %w",
			len(matches), name, strings.Join(ids, ", "), ErrAmbiguousName)
	}
}

// parseDocument turns a raw JSON string into an attribute map. "" means no
// document. When lenient parsing is enabled, near-JSON (trailing commas,
// single quotes) is repaired before being rejected.
func (c *Client) parseDocument(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data, nil
	}

	if c.config.Engine.LenientJSON {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err == nil {
			if err := json.Unmarshal([]byte(repaired), &data); err == nil {
				c.logger.Warn("document repaired before storing", "original", raw)
				return data, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, raw)
}

func documentKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

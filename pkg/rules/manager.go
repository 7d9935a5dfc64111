// Package rules stores and retrieves named inference rules. Rule bodies are
// opaque strings here: no parsing, no validation, no dependency checks. A
// rule earns syntax and semantic scrutiny only when a query evaluates it.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/soundprediction/kinship/pkg/driver"
	"github.com/soundprediction/kinship/pkg/types"
	"gopkg.in/yaml.v3"
)

// Reserved predicate names the query program defines itself. Rules may
// shadow them; the manager warns because it is rarely what the author meant.
var reservedPredicates = map[string]bool{
	"person":      true,
	"person_attr": true,
	"fact":        true,
	"fact_attr":   true,
	"undirected":  true,
}

// Manager persists named rules through a GraphDriver.
type Manager struct {
	driver driver.GraphDriver
	logger *slog.Logger
}

// NewManager creates a rule manager over the given driver.
func NewManager(drv driver.GraphDriver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{driver: drv, logger: logger}
}

// Save stores the rule verbatim, replacing any previous body under the same
// name. The body may reference predicates that do not exist yet; such rules
// simply fail queries until their dependencies appear.
func (m *Manager) Save(ctx context.Context, name, body, description string) error {
	rule := &types.Rule{Name: name, Body: body, Description: description}
	if err := rule.Validate(); err != nil {
		return err
	}

	for _, head := range headPredicates(body) {
		if reservedPredicates[head] {
			m.logger.Warn("rule shadows a built-in predicate", "rule", name, "predicate", head)
		}
	}

	if err := m.driver.UpsertRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", name, err)
	}
	m.logger.Info("rule saved", "rule", name)
	return nil
}

// Get retrieves a rule by name.
func (m *Manager) Get(ctx context.Context, name string) (*types.Rule, error) {
	return m.driver.GetRule(ctx, name)
}

// List retrieves every stored rule, sorted by name.
func (m *Manager) List(ctx context.Context) ([]*types.Rule, error) {
	return m.driver.ListRules(ctx)
}

// Gather returns every stored rule in name order, ready for program
// assembly. The order is deterministic so identical stores always produce
// identical programs.
func (m *Manager) Gather(ctx context.Context) ([]types.Rule, error) {
	stored, err := m.driver.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather rules: %w", err)
	}

	rules := make([]types.Rule, len(stored))
	for i, r := range stored {
		rules[i] = *r
	}
	return rules, nil
}

// seedRule is one entry of a YAML seed file.
type seedRule struct {
	Name        string `yaml:"name"`
	Body        string `yaml:"body"`
	Description string `yaml:"description"`
}

// SeedFromFile loads rules from a YAML file of {name, body, description}
// entries. Rules already present in the store are left untouched so a seed
// file never clobbers a rule the user has since refined.
func (m *Manager) SeedFromFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rule seed file %s: %w", path, err)
	}

	var seeds []seedRule
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return fmt.Errorf("failed to parse rule seed file %s: %w", path, err)
	}

	loaded := 0
	for _, seed := range seeds {
		_, err := m.driver.GetRule(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, driver.ErrRuleNotFound) {
			// Anything but a clean miss could be masking an existing rule.
			return fmt.Errorf("failed to check rule %s before seeding: %w", seed.Name, err)
		}
		if err := m.Save(ctx, seed.Name, seed.Body, seed.Description); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", seed.Name, err)
		}
		loaded++
	}

	m.logger.Info("rule seed file loaded", "path", path, "loaded", loaded, "skipped", len(seeds)-loaded)
	return nil
}

// headPredicates extracts the predicate names on the left of ":-" in each
// clause of body. Best effort; it exists only to power shadow warnings.
func headPredicates(body string) []string {
	var heads []string
	for _, line := range strings.Split(body, "\n") {
		head, _, found := strings.Cut(line, ":-")
		if !found {
			continue
		}
		name, _, found := strings.Cut(strings.TrimSpace(head), "(")
		if !found {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			heads = append(heads, name)
		}
	}
	return heads
}

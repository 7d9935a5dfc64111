package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/kinship/pkg/driver"
	"github.com/soundprediction/kinship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	body := `grandparent(A, C) :- parent(A, B), parent(B, C).`
	require.NoError(t, m.Save(ctx, "grandparent", body, "two hops of parenthood"))

	rule, err := m.Get(ctx, "grandparent")
	require.NoError(t, err)
	assert.Equal(t, body, rule.Body)
	assert.Equal(t, "two hops of parenthood", rule.Description)
}

func TestSaveReplacesBody(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	require.NoError(t, m.Save(ctx, "uncle", `uncle(U, N) :- wrong(U, N).`, ""))
	require.NoError(t, m.Save(ctx, "uncle", `uncle(U, N) :- sibling(U, P), parent(P, N).`, ""))

	rules, err := m.Gather(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Body, "sibling")
}

func TestSaveValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	assert.ErrorIs(t, m.Save(ctx, "", "x(A) :- y(A).", ""), types.ErrEmptyRule)
	assert.ErrorIs(t, m.Save(ctx, "x", "", ""), types.ErrEmptyBody)
}

func TestSaveAcceptsForwardReferences(t *testing.T) {
	// Rules may reference predicates that do not exist yet.
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	require.NoError(t, m.Save(ctx, "futuristic", `cousin(A, B) :- not_yet_defined(A, B).`, ""))
}

func TestGatherIsSortedByName(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	require.NoError(t, m.Save(ctx, "zeta", `z(A) :- person(A, _, _).`, ""))
	require.NoError(t, m.Save(ctx, "alpha", `a(A) :- person(A, _, _).`, ""))

	rules, err := m.Gather(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "alpha", rules[0].Name)
	assert.Equal(t, "zeta", rules[1].Name)
}

func TestSeedFromFile(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	seed := `
- name: grandparent
  body: "grandparent(A, C) :- parent(A, B), parent(B, C)."
  description: two hops
- name: uncle
  body: "uncle(U, N) :- sibling(U, P), parent(P, N)."
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	require.NoError(t, m.SeedFromFile(ctx, path))

	rules, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestSeedDoesNotClobberExistingRules(t *testing.T) {
	ctx := context.Background()
	m := NewManager(driver.NewMemoryDriver(), nil)

	require.NoError(t, m.Save(ctx, "grandparent", `grandparent(A, C) :- user_defined(A, C).`, ""))

	seed := `
- name: grandparent
  body: "grandparent(A, C) :- seeded(A, C)."
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	require.NoError(t, m.SeedFromFile(ctx, path))

	rule, err := m.Get(ctx, "grandparent")
	require.NoError(t, err)
	assert.Contains(t, rule.Body, "user_defined")
}

// flakyRuleDriver fails rule lookups without reporting the rule as absent.
type flakyRuleDriver struct {
	*driver.MemoryDriver
}

func (d *flakyRuleDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	return nil, errors.New("connection reset")
}

func TestSeedFailsOnLookupError(t *testing.T) {
	// A lookup failure is not the same as a missing rule; seeding through it
	// could overwrite a rule the user has since refined.
	ctx := context.Background()
	flaky := &flakyRuleDriver{MemoryDriver: driver.NewMemoryDriver()}
	m := NewManager(flaky, nil)

	require.NoError(t, flaky.MemoryDriver.UpsertRule(ctx,
		&types.Rule{Name: "grandparent", Body: `grandparent(A, C) :- user_defined(A, C).`}))

	seed := `
- name: grandparent
  body: "grandparent(A, C) :- seeded(A, C)."
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	err := m.SeedFromFile(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grandparent")

	rule, err := flaky.MemoryDriver.GetRule(ctx, "grandparent")
	require.NoError(t, err)
	assert.Contains(t, rule.Body, "user_defined")
}

func TestHeadPredicates(t *testing.T) {
	body := `helper(A) :- person(A, _, _).
fact(A, B, T, D) :- helper(A), helper(B).`

	heads := headPredicates(body)
	assert.Equal(t, []string{"helper", "fact"}, heads)
}

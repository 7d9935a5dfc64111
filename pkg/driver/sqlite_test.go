package driver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soundprediction/kinship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteDriver(t *testing.T) *SQLiteDriver {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kinship.db")
	d, err := NewSQLiteDriver(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSQLiteDriverPersonRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDriver(t)

	alice := &types.Person{
		ID:   "p-1",
		Name: "Alice",
		Data: map[string]any{"job": "Engineer", "hobbies": []any{"chess", "running"}},
	}
	require.NoError(t, d.UpsertPerson(ctx, alice))

	got, err := d.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "Engineer", got.Data["job"])
	assert.Equal(t, []any{"chess", "running"}, got.Data["hobbies"])
}

func TestSQLiteDriverUpsertReplacesRow(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDriver(t)

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-1", Name: "Alice", Data: map[string]any{"job": "Engineer"}}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-1", Name: "Alice B.", Data: map[string]any{"job": "Manager"}}))

	got, err := d.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", got.Name)
	assert.Equal(t, "Manager", got.Data["job"])

	persons, err := d.ListPersons(ctx)
	require.NoError(t, err)
	assert.Len(t, persons, 1)
}

func TestSQLiteDriverFactsAndTypes(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDriver(t)

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "a", Name: "A"}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "b", Name: "B"}))

	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "a", ToID: "b", Type: "parent_of"}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "a", ToID: "b", Type: "mentor_of", Data: map[string]any{"since": "2019"}}))

	facts, err := d.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "parent_of", facts[0].Type)
	assert.Equal(t, "2019", facts[1].Data["since"])

	relationTypes, err := d.ListRelationTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mentor_of", "parent_of"}, relationTypes)
}

func TestSQLiteDriverRules(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDriver(t)

	rule := &types.Rule{
		Name:        "grandparent",
		Body:        `grandparent(A, C) :- parent_fact(A, B), parent_fact(B, C).`,
		Description: "transitive parenthood",
	}
	require.NoError(t, d.UpsertRule(ctx, rule))

	// Replacement keeps a single row per name.
	rule.Body = `grandparent(A, C) :- parent(A, B), parent(B, C).`
	require.NoError(t, d.UpsertRule(ctx, rule))

	got, err := d.GetRule(ctx, "grandparent")
	require.NoError(t, err)
	assert.Contains(t, got.Body, "parent(A, B)")
	assert.Equal(t, "transitive parenthood", got.Description)

	rules, err := d.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestSQLiteDriverStatsAndClear(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDriver(t)

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "a", Name: "A"}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "b", Name: "B"}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "a", ToID: "b", Type: "parent_of"}))
	require.NoError(t, d.UpsertRule(ctx, &types.Rule{Name: "r", Body: "x(A) :- y(A)."}))

	stats, err := d.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PersonCount)
	assert.Equal(t, int64(1), stats.FactCount)
	assert.Equal(t, int64(1), stats.RuleCount)
	assert.Equal(t, int64(1), stats.FactsByType["parent_of"])

	require.NoError(t, d.Clear(ctx))

	stats, err = d.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PersonCount)
	assert.Zero(t, stats.FactCount)
	assert.Zero(t, stats.RuleCount)
}

func TestSQLiteDriverCreateIndices(t *testing.T) {
	d := newTestSQLiteDriver(t)

	require.NoError(t, d.CreateIndices(context.Background()))
	// Idempotent.
	require.NoError(t, d.CreateIndices(context.Background()))
}

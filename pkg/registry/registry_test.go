package registry

import (
	"context"
	"testing"

	"github.com/soundprediction/kinship/pkg/driver"
	"github.com/soundprediction/kinship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDriver(t *testing.T) driver.GraphDriver {
	t.Helper()
	ctx := context.Background()
	d := driver.NewMemoryDriver()

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{
		ID: "p-1", Name: "Alice",
		Data: map[string]any{"job": "Engineer", "birth_year": float64(1990)},
	}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{
		ID: "p-2", Name: "Bob",
		Data: map[string]any{"job": "Chef", "city": "Lisbon"},
	}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "p-1", ToID: "p-2", Type: "parent_of"}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "p-2", ToID: "p-1", Type: "mentor_of"}))
	return d
}

func TestRelationTypes(t *testing.T) {
	r := New(seedDriver(t), nil, 0)

	relationTypes, err := r.RelationTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mentor_of", "parent_of"}, relationTypes)
}

func TestRelationTypesEmptyStore(t *testing.T) {
	r := New(driver.NewMemoryDriver(), nil, 0)

	relationTypes, err := r.RelationTypes(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, relationTypes)
	assert.Empty(t, relationTypes)
}

func TestPersonSchema(t *testing.T) {
	r := New(seedDriver(t), nil, 10)

	schema, err := r.PersonSchema(context.Background())
	require.NoError(t, err)

	assert.Contains(t, schema, "name")
	assert.Contains(t, schema, "job")
	assert.Contains(t, schema, "birth_year")
	assert.Contains(t, schema, "city")
}

func TestPersonSchemaEmptyStore(t *testing.T) {
	r := New(driver.NewMemoryDriver(), nil, 10)

	schema, err := r.PersonSchema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schema)
}

func TestPersonSchemaRespectsSampleLimit(t *testing.T) {
	ctx := context.Background()
	d := driver.NewMemoryDriver()
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-1", Name: "Old", Data: map[string]any{"legacy_key": true}}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-2", Name: "New", Data: map[string]any{"fresh_key": true}}))

	r := New(d, nil, 1)
	schema, err := r.PersonSchema(ctx)
	require.NoError(t, err)

	// Only the most recent person is sampled.
	assert.Contains(t, schema, "fresh_key")
	assert.NotContains(t, schema, "legacy_key")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, normalize("parent_of"), normalize("parentOf"))
	assert.Equal(t, normalize("parent_of"), normalize("parent-of"))
	assert.Equal(t, normalize("parent_of"), normalize("Parent Of"))
	assert.NotEqual(t, normalize("parent_of"), normalize("child_of"))
}

func TestAdviseNeverFails(t *testing.T) {
	// Advice is best-effort; it must not panic or block on an empty store.
	r := New(driver.NewMemoryDriver(), nil, 0)
	ctx := context.Background()

	r.AdviseFactType(ctx, "parent_of")
	r.AdvisePersonKeys(ctx, []string{"job", "birthYear"})
}

package datalog

import (
	"context"
	"testing"
	"time"

	"github.com/soundprediction/kinship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// familySnapshot is three generations: Abe fathers Bob, Bob fathers Carl.
func familySnapshot() Snapshot {
	return Snapshot{
		Persons: []*types.Person{
			{ID: "p-abe", Name: "Abe", Data: map[string]any{"birth_year": float64(1940)}},
			{ID: "p-bob", Name: "Bob", Data: map[string]any{"birth_year": float64(1970), "job": "Chef"}},
			{ID: "p-carl", Name: "Carl"},
		},
		Facts: []*types.Fact{
			{FromID: "p-abe", ToID: "p-bob", Type: "father_of"},
			{FromID: "p-bob", ToID: "p-carl", Type: "father_of", Data: map[string]any{"confirmed": true}},
		},
	}
}

func newTestExecutor() *Executor {
	return NewExecutor(10*time.Second, nil)
}

func TestBaseAtomQuery(t *testing.T) {
	result, err := newTestExecutor().Run(context.Background(), familySnapshot(), `person(Id, "Bob", _)`)
	require.NoError(t, err)

	assert.Equal(t, []string{"Id"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "p-bob", result.Rows[0]["Id"])
}

func TestStoredRuleGrandfather(t *testing.T) {
	snapshot := familySnapshot()
	snapshot.Rules = []types.Rule{{
		Name: "grandfather",
		Body: `grandfather(A, C) :- fact(A, B, "father_of", _), fact(B, C, "father_of", _).`,
	}}

	result, err := newTestExecutor().Run(context.Background(), snapshot, `grandfather(X, "p-carl")`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "p-abe", result.Rows[0]["X"])
}

func TestRecursiveRule(t *testing.T) {
	snapshot := familySnapshot()
	snapshot.Rules = []types.Rule{{
		Name: "ancestor",
		Body: `ancestor(A, B) :- fact(A, B, "father_of", _).
ancestor(A, C) :- fact(A, B, "father_of", _), ancestor(B, C).`,
	}}

	result, err := newTestExecutor().Run(context.Background(), snapshot, `ancestor("p-abe", X)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, "p-bob", result.Rows[0]["X"])
	assert.Equal(t, "p-carl", result.Rows[1]["X"])
}

func TestUndirectedPrelude(t *testing.T) {
	// The fact is stored in one direction only; undirected/3 matches both.
	snapshot := Snapshot{
		Persons: []*types.Person{
			{ID: "p-a", Name: "Ann"},
			{ID: "p-b", Name: "Ben"},
		},
		Facts: []*types.Fact{
			{FromID: "p-a", ToID: "p-b", Type: "sibling_of"},
		},
	}

	result, err := newTestExecutor().Run(context.Background(), snapshot, `undirected("p-b", "p-a", T)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "sibling_of", result.Rows[0]["T"])
}

func TestMultiClauseQuery(t *testing.T) {
	query := `child_name(N) :- fact("p-abe", B, "father_of", _), person(B, N, _).`

	result, err := newTestExecutor().Run(context.Background(), familySnapshot(), query)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bob", result.Rows[0]["N"])
}

func TestAttributeFlattening(t *testing.T) {
	result, err := newTestExecutor().Run(context.Background(), familySnapshot(),
		`person_attr(Id, "birth_year", 1940)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "p-abe", result.Rows[0]["Id"])

	result, err = newTestExecutor().Run(context.Background(), familySnapshot(),
		`fact_attr(_, _, _, "confirmed", V)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, true, result.Rows[0]["V"])
}

func TestBooleanQuery(t *testing.T) {
	exec := newTestExecutor()

	holds, err := exec.Run(context.Background(), familySnapshot(), `fact("p-abe", "p-bob", "father_of", _)`)
	require.NoError(t, err)
	assert.Empty(t, holds.Columns)
	assert.Len(t, holds.Rows, 1)

	fails, err := exec.Run(context.Background(), familySnapshot(), `fact("p-carl", "p-abe", "father_of", _)`)
	require.NoError(t, err)
	assert.Empty(t, fails.Rows)
}

func TestEmptyStore(t *testing.T) {
	result, err := newTestExecutor().Run(context.Background(), Snapshot{}, `person(Id, Name, _)`)
	require.NoError(t, err)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
}

func TestBrokenRuleFailsWholeCall(t *testing.T) {
	// One bad rule poisons every query, not just queries that touch it.
	snapshot := familySnapshot()
	snapshot.Rules = []types.Rule{{
		Name: "broken",
		Body: `orphaned(A) :- no_such_predicate(A, B).`,
	}}

	_, err := newTestExecutor().Run(context.Background(), snapshot, `person(Id, Name, _)`)
	assert.Error(t, err)
}

func TestUndefinedGoalPredicateFailsWholeCall(t *testing.T) {
	// A bare-atom goal never enters the analyzed program; it must still fail
	// loudly rather than answer zero rows when nothing defines its predicate.
	_, err := newTestExecutor().Run(context.Background(), familySnapshot(), `father("p-abe", C)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "father/2")

	// Wrong arity against a known predicate is the same defect.
	_, err = newTestExecutor().Run(context.Background(), familySnapshot(), `person(Id, Name)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "person/2")
}

func TestQueryParseError(t *testing.T) {
	_, err := newTestExecutor().Run(context.Background(), familySnapshot(), `person(Id,`)
	assert.Error(t, err)
}

func TestEmptyQuery(t *testing.T) {
	_, err := newTestExecutor().Run(context.Background(), familySnapshot(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRepeatedGoalVariable(t *testing.T) {
	snapshot := Snapshot{
		Persons: []*types.Person{{ID: "p-x", Name: "Xer"}},
		Facts: []*types.Fact{
			{FromID: "p-x", ToID: "p-x", Type: "knows"},
			{FromID: "p-x", ToID: "p-y", Type: "knows"},
		},
	}

	result, err := newTestExecutor().Run(context.Background(), snapshot, `fact(A, A, "knows", _)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "p-x", result.Rows[0]["A"])
}

func TestRowsAreSortedAndDeduplicated(t *testing.T) {
	snapshot := Snapshot{
		Persons: []*types.Person{
			{ID: "p-2", Name: "Zed"},
			{ID: "p-1", Name: "Amy"},
		},
	}
	snapshot.Rules = []types.Rule{{
		Name: "known_id",
		Body: `known_id(Id) :- person(Id, _, _).
known_id(Id) :- person_attr(Id, _, _).
known_id(Id) :- person(Id, "Amy", _).`,
	}}

	result, err := newTestExecutor().Run(context.Background(), snapshot, `known_id(Id)`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, "p-1", result.Rows[0]["Id"])
	assert.Equal(t, "p-2", result.Rows[1]["Id"])
}

func TestRenderValueScalars(t *testing.T) {
	assert.Equal(t, `"hi"`, renderValue("hi"))
	assert.Equal(t, "/true", renderValue(true))
	assert.Equal(t, "/false", renderValue(false))
	assert.Equal(t, "1990", renderValue(float64(1990)))
	assert.Equal(t, "42", renderValue(42))
	assert.Equal(t, `"[1,2]"`, renderValue([]any{float64(1), float64(2)}))
}

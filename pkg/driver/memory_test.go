package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/soundprediction/kinship/pkg/alert"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDriverPersonRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	alice := &types.Person{ID: "p-1", Name: "Alice", Data: map[string]any{"job": "Engineer", "age": float64(34)}}
	require.NoError(t, d.UpsertPerson(ctx, alice))

	got, err := d.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "Engineer", got.Data["job"])
	assert.Equal(t, float64(34), got.Data["age"])
}

func TestMemoryDriverPersonNotFound(t *testing.T) {
	d := NewMemoryDriver()

	_, err := d.GetPerson(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestMemoryDriverDuplicateNames(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-1", Name: "Alice"}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-2", Name: "Alice"}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-3", Name: "Bob"}))

	matches, err := d.GetPersonsByName(ctx, "Alice")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = d.GetPersonsByName(ctx, "Carol")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryDriverRelationTypes(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "a", Name: "A"}))
	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "b", Name: "B"}))

	// Empty store yields an empty list, not an error.
	relationTypes, err := d.ListRelationTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, relationTypes)

	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "a", ToID: "b", Type: "parent_of"}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "b", ToID: "a", Type: "child_of"}))
	require.NoError(t, d.InsertFact(ctx, &types.Fact{FromID: "a", ToID: "b", Type: "parent_of"}))

	relationTypes, err = d.ListRelationTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"child_of", "parent_of"}, relationTypes)
}

func TestMemoryDriverRuleUpsert(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	require.NoError(t, d.UpsertRule(ctx, &types.Rule{Name: "uncle", Body: "first body."}))
	require.NoError(t, d.UpsertRule(ctx, &types.Rule{Name: "uncle", Body: "second body.", Description: "fixed"}))

	rule, err := d.GetRule(ctx, "uncle")
	require.NoError(t, err)
	assert.Equal(t, "second body.", rule.Body)
	assert.Equal(t, "fixed", rule.Description)

	rules, err := d.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = d.GetRule(ctx, "aunt")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestMemoryDriverClear(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "a", Name: "A"}))
	require.NoError(t, d.UpsertRule(ctx, &types.Rule{Name: "r", Body: "x(A) :- y(A)."}))
	require.NoError(t, d.Clear(ctx))

	persons, err := d.ListPersons(ctx)
	require.NoError(t, err)
	assert.Empty(t, persons)

	rules, err := d.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestMemoryDriverClonesOnRead(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	require.NoError(t, d.UpsertPerson(ctx, &types.Person{ID: "p-1", Name: "Alice", Data: map[string]any{"job": "Engineer"}}))

	got, err := d.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	got.Data["job"] = "mutated"

	again, err := d.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Engineer", again.Data["job"])
}

// failingDriver always errors, for breaker tests.
type failingDriver struct {
	MemoryDriver
}

func (f *failingDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	return nil, errors.New("backend down")
}

func (f *failingDriver) Provider() GraphProvider {
	return GraphProviderMemory
}

func TestBreakerDriverOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	cfg := config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}
	d := NewBreakerDriver(&failingDriver{}, cfg)

	for i := 0; i < 5; i++ {
		_, err := d.ListPersons(ctx)
		require.Error(t, err)
	}

	_, err := d.ListPersons(ctx)
	assert.ErrorContains(t, err, "circuit breaker is open")
}

func TestBreakerDriverNotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}
	d := NewBreakerDriver(NewMemoryDriver(), cfg)

	for i := 0; i < 10; i++ {
		_, err := d.GetPerson(ctx, "missing")
		assert.ErrorIs(t, err, ErrPersonNotFound)
	}
}

// recordingAlerter captures alerts instead of sending email.
type recordingAlerter struct {
	subjects []string
}

func (a *recordingAlerter) Alert(subject, message string) error {
	a.subjects = append(a.subjects, subject)
	return nil
}

func TestBreakerDriverAlertsOnTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}
	alerter := &recordingAlerter{}
	d := NewBreakerDriverWithAlerter(&failingDriver{}, cfg, alerter)

	for i := 0; i < 5; i++ {
		_, _ = d.ListPersons(ctx)
	}

	require.Len(t, alerter.subjects, 1)
	assert.Contains(t, alerter.subjects[0], "Circuit Breaker Tripped")
}

func TestNewWiresAlerterIntoBreaker(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "memory"
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}
	cfg.Alert = config.AlertConfig{
		Enabled:  true,
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		From:     "kinship@example.com",
		To:       []string{"ops@example.com"},
	}

	drv, err := New(cfg)
	require.NoError(t, err)

	breaker, ok := drv.(*BreakerDriver)
	require.True(t, ok)
	_, isEmail := breaker.alerter.(*alert.EmailAlerter)
	assert.True(t, isEmail)
}

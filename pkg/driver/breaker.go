package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/kinship/pkg/alert"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/types"
)

// BreakerDriver wraps a GraphDriver with circuit breaking logic. When the
// backend keeps failing the breaker opens and calls fail fast instead of
// stalling every API operation on a dead database.
type BreakerDriver struct {
	next    GraphDriver
	cb      *gobreaker.CircuitBreaker
	alerter alert.Alerter
}

// NewBreakerDriver creates a circuit-breaking decorator around next.
func NewBreakerDriver(next GraphDriver, cfg config.CircuitBreakerConfig) *BreakerDriver {
	return NewBreakerDriverWithAlerter(next, cfg, nil)
}

// NewBreakerDriverWithAlerter creates a circuit-breaking decorator that also
// sends an alert when the breaker trips.
func NewBreakerDriverWithAlerter(next GraphDriver, cfg config.CircuitBreakerConfig, alerter alert.Alerter) *BreakerDriver {
	name := fmt.Sprintf("graph-driver-%s", next.Provider())

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		IsSuccessful: func(err error) bool {
			// Not-found lookups are answers, not storage failures.
			return err == nil || errors.Is(err, ErrPersonNotFound) || errors.Is(err, ErrRuleNotFound)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen && alerter != nil {
				msg := fmt.Sprintf("Circuit breaker '%s' changed status from %s to %s. Too many storage failures detected.", name, from, to)
				_ = alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg)
			}
		},
	}

	return &BreakerDriver{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(st),
		alerter: alerter,
	}
}

func (d *BreakerDriver) UpsertPerson(ctx context.Context, person *types.Person) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.next.UpsertPerson(ctx, person)
	})
	return err
}

func (d *BreakerDriver) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.GetPerson(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.Person), nil
}

func (d *BreakerDriver) GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.GetPersonsByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Person), nil
}

func (d *BreakerDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.ListPersons(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Person), nil
}

func (d *BreakerDriver) SamplePersons(ctx context.Context, limit int) ([]*types.Person, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.SamplePersons(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Person), nil
}

func (d *BreakerDriver) InsertFact(ctx context.Context, fact *types.Fact) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.next.InsertFact(ctx, fact)
	})
	return err
}

func (d *BreakerDriver) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.ListFacts(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Fact), nil
}

func (d *BreakerDriver) ListRelationTypes(ctx context.Context) ([]string, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.ListRelationTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

func (d *BreakerDriver) UpsertRule(ctx context.Context, rule *types.Rule) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.next.UpsertRule(ctx, rule)
	})
	return err
}

func (d *BreakerDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.GetRule(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.Rule), nil
}

func (d *BreakerDriver) ListRules(ctx context.Context) ([]*types.Rule, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.ListRules(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*types.Rule), nil
}

func (d *BreakerDriver) GetStats(ctx context.Context) (*GraphStats, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.next.GetStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*GraphStats), nil
}

func (d *BreakerDriver) CreateIndices(ctx context.Context) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.next.CreateIndices(ctx)
	})
	return err
}

func (d *BreakerDriver) Clear(ctx context.Context) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.next.Clear(ctx)
	})
	return err
}

func (d *BreakerDriver) Close() error {
	return d.next.Close()
}

func (d *BreakerDriver) Provider() GraphProvider {
	return d.next.Provider()
}

package driver

import (
	"fmt"

	"github.com/soundprediction/kinship/pkg/alert"
	"github.com/soundprediction/kinship/pkg/config"
)

// New creates a GraphDriver from configuration. The driver is selected by
// cfg.Database.Driver; when circuit breaking is enabled the returned driver
// is wrapped in a BreakerDriver, with email alerting on breaker trips when
// cfg.Alert is enabled.
func New(cfg *config.Config) (GraphDriver, error) {
	var (
		drv GraphDriver
		err error
	)

	switch GraphProvider(cfg.Database.Driver) {
	case GraphProviderSQLite:
		drv, err = NewSQLiteDriver(cfg.Database.URI)
	case GraphProviderNeo4j:
		drv, err = NewNeo4jDriver(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	case GraphProviderBadger:
		drv, err = NewBadgerDriver(cfg.Database.URI)
	case GraphProviderMemory:
		drv = NewMemoryDriver()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CircuitBreaker.Enabled {
		var alerter alert.Alerter = &alert.NoOpAlerter{}
		if cfg.Alert.Enabled {
			alerter = alert.NewEmailAlerter(cfg.Alert)
		}
		drv = NewBreakerDriverWithAlerter(drv, cfg.CircuitBreaker, alerter)
	}

	return drv, nil
}

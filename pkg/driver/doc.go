// Package driver provides the storage abstraction layer for kinship.
//
// The GraphDriver interface defines the persistence operations the engine
// needs: upserting persons, appending facts, storing named rules, and
// snapshotting the graph for query evaluation. Four implementations ship
// with kinship:
//
//   - SQLiteDriver: embedded single-file storage, the default
//   - Neo4jDriver: a Neo4j server over the bolt protocol
//   - BadgerDriver: embedded key-value storage
//   - MemoryDriver: map-backed, for tests and ephemeral agents
//
// The BreakerDriver decorator wraps any of them with a circuit breaker so a
// misbehaving backend fails fast instead of hanging every API call.
//
// Use New to construct a driver from configuration:
//
//	drv, err := driver.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
package driver

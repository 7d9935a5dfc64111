// Package kinship is a personal relationship graph with a Datalog brain.
//
// People and the facts connecting them are stored as open JSON documents in a
// pluggable graph store. Inference rules, written in Datalog and registered
// at runtime by name, are persisted alongside the data; every query is
// evaluated against the full rule set by the Mangle engine, so "who is Carl's
// great-uncle" is one rule away from the raw facts.
//
// The Client is the single entry point. Construct one over a driver:
//
//	drv, err := driver.New(cfg)
//	client, err := kinship.NewClient(drv, cfg, logger)
//
//	person, err := client.AddPerson(ctx, "Bob", `{"birth_year": 1970}`)
//	_, err = client.AddFact(ctx, "Abe", "Bob", "father_of", "")
//	err = client.AddRule(ctx, "grandfather",
//		`grandfather(A, C) :- fact(A, B, "father_of", _), fact(B, C, "father_of", _).`, "")
//	result, err := client.RunQuery(ctx, `grandfather(X, "p-carl")`)
//
// All failures are returned as errors; nothing in the API panics on bad
// input.
package kinship

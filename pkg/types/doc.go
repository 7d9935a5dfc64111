// Package types defines the core data types for the kinship relationship graph.
//
// This package contains the fundamental types used throughout kinship:
//   - Person: Represents a person node with an open JSON attribute document
//   - Fact: Represents a typed, directed relationship between two persons
//   - Rule: Represents a named inference rule stored verbatim
//
// # Open Documents
//
// Person and Fact carry a Data map holding arbitrary JSON attributes. There is
// no fixed schema; callers may attach any keys and values, and the vocabulary
// of fact types grows organically as facts are added.
//
// # Validation
//
// Types provide Validate() methods for input validation:
//
//	person := &types.Person{ID: "…", Name: "Alice"}
//	if err := person.Validate(); err != nil {
//	    // Handle validation error
//	}
package types

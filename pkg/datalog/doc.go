// Package datalog turns a graph snapshot plus stored rules plus a caller
// query into one Datalog program and evaluates it to fixpoint with the Mangle
// engine. Persons and facts become base atoms, top-level document scalars are
// flattened into person_attr/fact_attr atoms, and a small prelude derives
// undirected/3 so symmetric relations need only one stored edge.
package datalog

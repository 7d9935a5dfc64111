package datalog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/soundprediction/kinship/pkg/types"
)

// Snapshot is the graph state a query evaluates against. The executor never
// reads the store itself; the caller snapshots persons, facts, and rules and
// hands them over, so one query sees one consistent state.
type Snapshot struct {
	Persons []*types.Person
	Facts   []*types.Fact
	Rules   []types.Rule
}

// Base predicate declarations. Declaring them keeps analysis happy when the
// graph (or one predicate) is empty, and gives rule authors a stable surface:
//
//	person(Id, Name, Data)              one atom per person, Data is the JSON document
//	person_attr(Id, Key, Value)         one atom per top-level scalar attribute
//	fact(From, To, Type, Data)          one atom per stored fact edge
//	fact_attr(From, To, Type, Key, Value)
const baseDecls = `Decl person(Id, Name, Data).
Decl person_attr(Id, Key, Value).
Decl fact(From, To, Type, Data).
Decl fact_attr(From, To, Type, Key, Value).
`

// The prelude ships with every program. Facts are stored once in the
// direction they were asserted; rules that want symmetric relations match
// undirected/3 instead of fact/4.
const prelude = `undirected(A, B, T) :- fact(A, B, T, _).
undirected(A, B, T) :- fact(B, A, T, _).
`

// renderProgram flattens the snapshot into Datalog source: declarations,
// base atoms, the prelude, every stored rule body, and finally the caller's
// clauses (empty when the query is a bare goal atom).
func renderProgram(snapshot Snapshot, queryClauses string) string {
	var sb strings.Builder
	sb.WriteString(baseDecls)
	sb.WriteString("\n")

	for _, p := range snapshot.Persons {
		fmt.Fprintf(&sb, "person(%s, %s, %s).\n",
			renderString(p.ID), renderString(p.Name), renderDocument(p.Data))
		for _, key := range sortedKeys(p.Data) {
			fmt.Fprintf(&sb, "person_attr(%s, %s, %s).\n",
				renderString(p.ID), renderString(key), renderValue(p.Data[key]))
		}
	}

	for _, f := range snapshot.Facts {
		fmt.Fprintf(&sb, "fact(%s, %s, %s, %s).\n",
			renderString(f.FromID), renderString(f.ToID), renderString(f.Type), renderDocument(f.Data))
		for _, key := range sortedKeys(f.Data) {
			fmt.Fprintf(&sb, "fact_attr(%s, %s, %s, %s, %s).\n",
				renderString(f.FromID), renderString(f.ToID), renderString(f.Type),
				renderString(key), renderValue(f.Data[key]))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(prelude)

	for _, rule := range snapshot.Rules {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(rule.Body))
		sb.WriteString("\n")
	}

	if queryClauses != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(queryClauses))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderString renders a Go string as a Datalog string literal.
func renderString(s string) string {
	return fmt.Sprintf("%q", s)
}

// renderDocument renders an attribute map as a JSON string literal, or "" for
// an absent document. Rules that care about individual attributes match the
// flattened *_attr predicates instead of parsing this.
func renderDocument(data map[string]any) string {
	if len(data) == 0 {
		return `""`
	}
	encoded, err := marshalStable(data)
	if err != nil {
		return `""`
	}
	return renderString(encoded)
}

// renderValue renders a JSON scalar as a Datalog term. Integral numbers
// become number constants so rule literals like 1990 match; everything
// non-scalar collapses to its JSON text.
func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return renderString(val)
	case bool:
		if val {
			return "/true"
		}
		return "/false"
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < float64(1<<53) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%f", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case nil:
		return `""`
	default:
		encoded, err := marshalStable(val)
		if err != nil {
			return renderString(fmt.Sprintf("%v", val))
		}
		return renderString(encoded)
	}
}

// marshalStable encodes v as compact JSON. encoding/json already sorts map
// keys, so equal documents always render to equal literals.
func marshalStable(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

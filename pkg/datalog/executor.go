package datalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// DefaultTimeout bounds a single evaluation when neither the context nor the
// configuration says otherwise.
const DefaultTimeout = 30 * time.Second

// ErrEmptyQuery is returned when the query text is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// Result holds the bindings produced by one query evaluation.
type Result struct {
	// Columns lists the goal's variable names in order of appearance.
	Columns []string `json:"columns"`
	// Rows maps each column name to its bound value, one map per answer.
	// A boolean query (no variables) yields one empty row when it holds.
	Rows     []map[string]any `json:"rows"`
	Duration time.Duration    `json:"duration"`
}

// Executor evaluates queries against a Snapshot. Each call assembles a fresh
// program and a fresh fact store, runs it to fixpoint, and reads the goal
// predicate back out. Nothing survives between calls.
type Executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an executor. A non-positive timeout selects
// DefaultTimeout.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{timeout: timeout, logger: logger}
}

// Run evaluates query against the snapshot. The query is either a single goal
// atom, e.g.
//
//	grandparent(X, "Carl")
//
// or one or more clauses whose last head is the goal:
//
//	result(X) :- undirected(X, Y, "sibling_of"), person(Y, "Bob", _).
//
// Any parse or analysis problem anywhere in the assembled program, including
// a previously stored rule, fails the whole call.
func (e *Executor) Run(ctx context.Context, snapshot Snapshot, query string) (*Result, error) {
	goal, queryClauses, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	program := renderProgram(snapshot, queryClauses)
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}

	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("program analysis failed: %w", err)
	}

	// A bare-atom goal is not part of the analyzed program, so analysis cannot
	// catch it naming a predicate nothing defines. Reading an unknown predicate
	// out of the store would silently yield zero rows instead of an error.
	if _, ok := info.Decls[goal.Predicate]; !ok {
		return nil, fmt.Errorf("undefined predicate %s/%d: no base relation or stored rule defines it",
			goal.Predicate.Symbol, goal.Predicate.Arity)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resultChan := make(chan *Result, 1)
	errChan := make(chan error, 1)

	go func() {
		store := factstore.NewSimpleInMemoryStore()
		if _, err := engine.EvalProgramWithStats(info, store); err != nil {
			errChan <- fmt.Errorf("evaluation failed: %w", err)
			return
		}

		columns, rows, err := collectRows(store, goal)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- &Result{Columns: columns, Rows: rows, Duration: time.Since(start)}
	}()

	select {
	case result := <-resultChan:
		e.logger.Debug("query evaluated",
			"goal", goal.Predicate.Symbol, "rows", len(result.Rows), "duration", result.Duration)
		return result, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("query timed out after %v: %w", time.Since(start), ctx.Err())
	}
}

// parseQuery splits the query text into a goal atom and the clauses to append
// to the program. A bare atom contributes no clauses; a clause list
// contributes itself, with the last clause's head as the goal.
func parseQuery(query string) (ast.Atom, string, error) {
	clean := strings.TrimSpace(query)
	clean = strings.TrimSpace(strings.TrimPrefix(clean, "?"))
	if clean == "" {
		return ast.Atom{}, "", ErrEmptyQuery
	}

	if strings.Contains(clean, ":-") {
		unit, err := parse.Unit(strings.NewReader(clean))
		if err != nil {
			return ast.Atom{}, "", fmt.Errorf("failed to parse query %q: %w", query, err)
		}
		if len(unit.Clauses) == 0 {
			return ast.Atom{}, "", fmt.Errorf("query %q contains no clauses", query)
		}
		return unit.Clauses[len(unit.Clauses)-1].Head, clean, nil
	}

	clean = strings.TrimSpace(strings.TrimSuffix(clean, "."))
	goal, err := parse.Atom(clean)
	if err != nil {
		goal, err = parse.Atom(clean + ".")
		if err != nil {
			return ast.Atom{}, "", fmt.Errorf("failed to parse query %q: %w", query, err)
		}
	}
	return goal, "", nil
}

// collectRows reads every derived fact of the goal's predicate and keeps the
// ones the goal atom unifies with. Rows are deduplicated and sorted so equal
// stores always answer equally.
func collectRows(store factstore.ReadOnlyFactStore, goal ast.Atom) ([]string, []map[string]any, error) {
	columns := make([]string, 0, len(goal.Args))
	seen := make(map[string]bool, len(goal.Args))
	for _, arg := range goal.Args {
		if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" && !seen[v.Symbol] {
			seen[v.Symbol] = true
			columns = append(columns, v.Symbol)
		}
	}

	var rows []map[string]any
	dedupe := make(map[string]bool)
	err := store.GetFacts(ast.NewQuery(goal.Predicate), func(fact ast.Atom) error {
		row, ok := unify(goal, fact)
		if !ok {
			return nil
		}
		key := rowKey(row, columns)
		if dedupe[key] {
			return nil
		}
		dedupe[key] = true
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read results: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rowKey(rows[i], columns) < rowKey(rows[j], columns)
	})
	if rows == nil {
		rows = []map[string]any{}
	}
	return columns, rows, nil
}

// unify matches one derived fact against the goal atom. Variables bind (the
// same variable must bind the same value everywhere it appears), constants
// must match exactly, and "_" matches anything.
func unify(goal, fact ast.Atom) (map[string]any, bool) {
	if len(goal.Args) != len(fact.Args) {
		return nil, false
	}

	row := map[string]any{}
	for i, arg := range goal.Args {
		switch term := arg.(type) {
		case ast.Variable:
			if term.Symbol == "_" {
				continue
			}
			value := termValue(fact.Args[i])
			if bound, ok := row[term.Symbol]; ok {
				if bound != value {
					return nil, false
				}
				continue
			}
			row[term.Symbol] = value
		case ast.Constant:
			factConst, ok := fact.Args[i].(ast.Constant)
			if !ok || !term.Equals(factConst) {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return row, true
}

func rowKey(row map[string]any, columns []string) string {
	var sb strings.Builder
	for _, col := range columns {
		fmt.Fprintf(&sb, "%v\x00", row[col])
	}
	return sb.String()
}

// termValue converts a bound term to a plain Go value. Name constants /true
// and /false come back as booleans since that is how renderValue encodes
// document booleans.
func termValue(term ast.BaseTerm) any {
	c, ok := term.(ast.Constant)
	if !ok {
		return term.String()
	}
	switch c.Type {
	case ast.StringType, ast.BytesType:
		return c.Symbol
	case ast.NameType:
		switch c.Symbol {
		case "/true":
			return true
		case "/false":
			return false
		}
		return c.Symbol
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	default:
		return c.String()
	}
}

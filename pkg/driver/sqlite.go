package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/soundprediction/kinship/pkg/types"
)

// SQLiteDriver implements GraphDriver over a single SQLite file. It is the
// default backend: zero-setup, transactional, and good enough for a personal
// graph of thousands of persons.
type SQLiteDriver struct {
	db   *sql.DB
	path string
}

// NewSQLiteDriver opens (or creates) the database at path and applies the
// schema. Pass ":memory:" for an ephemeral database.
func NewSQLiteDriver(path string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	// WAL keeps readers unblocked during writes; the busy timeout covers
	// the occasional overlapping writer.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	d := &SQLiteDriver{db: db, path: path}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

func (d *SQLiteDriver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS persons (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS facts (
		seq     INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id TEXT NOT NULL REFERENCES persons(id),
		to_id   TEXT NOT NULL REFERENCES persons(id),
		type    TEXT NOT NULL,
		data    TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS rules (
		name        TEXT PRIMARY KEY,
		body        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// UpsertPerson inserts the person, replacing any existing row with the same id.
func (d *SQLiteDriver) UpsertPerson(ctx context.Context, person *types.Person) error {
	if err := person.Validate(); err != nil {
		return err
	}

	data, err := marshalDocument(person.Data)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data`,
		person.ID, person.Name, data)
	if err != nil {
		return fmt.Errorf("failed to upsert person %s: %w", person.ID, err)
	}
	return nil
}

// GetPerson retrieves a person by id.
func (d *SQLiteDriver) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, name, data FROM persons WHERE id = ?`, id)
	person, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	return person, err
}

// GetPersonsByName retrieves every person with the given display name.
func (d *SQLiteDriver) GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, data FROM persons WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons by name: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// ListPersons retrieves every person in the store.
func (d *SQLiteDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, data FROM persons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// SamplePersons retrieves up to limit persons, most recently inserted first.
func (d *SQLiteDriver) SamplePersons(ctx context.Context, limit int) ([]*types.Person, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, data FROM persons ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample persons: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// InsertFact appends a fact edge.
func (d *SQLiteDriver) InsertFact(ctx context.Context, fact *types.Fact) error {
	if err := fact.Validate(); err != nil {
		return err
	}

	data, err := marshalDocument(fact.Data)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `INSERT INTO facts (from_id, to_id, type, data) VALUES (?, ?, ?, ?)`,
		fact.FromID, fact.ToID, fact.Type, data)
	if err != nil {
		return fmt.Errorf("failed to insert fact %s: %w", fact.Type, err)
	}
	return nil
}

// ListFacts retrieves every fact in insertion order.
func (d *SQLiteDriver) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT from_id, to_id, type, data FROM facts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	var facts []*types.Fact
	for rows.Next() {
		var f types.Fact
		var data string
		if err := rows.Scan(&f.FromID, &f.ToID, &f.Type, &data); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		if f.Data, err = unmarshalDocument(data); err != nil {
			return nil, err
		}
		facts = append(facts, &f)
	}
	return facts, rows.Err()
}

// ListRelationTypes retrieves the distinct fact types, sorted.
func (d *SQLiteDriver) ListRelationTypes(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT type FROM facts ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list relation types: %w", err)
	}
	defer rows.Close()

	relationTypes := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan relation type: %w", err)
		}
		relationTypes = append(relationTypes, t)
	}
	return relationTypes, rows.Err()
}

// UpsertRule stores the rule, replacing any previous body under the same name.
func (d *SQLiteDriver) UpsertRule(ctx context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rules (name, body, description) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, description = excluded.description`,
		rule.Name, rule.Body, rule.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.Name, err)
	}
	return nil
}

// GetRule retrieves a rule by name.
func (d *SQLiteDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	var r types.Rule
	err := d.db.QueryRowContext(ctx, `SELECT name, body, description FROM rules WHERE name = ?`, name).
		Scan(&r.Name, &r.Body, &r.Description)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", name, err)
	}
	return &r, nil
}

// ListRules retrieves every rule sorted by name.
func (d *SQLiteDriver) ListRules(ctx context.Context) ([]*types.Rule, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name, body, description FROM rules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.Rule
	for rows.Next() {
		var r types.Rule
		if err := rows.Scan(&r.Name, &r.Body, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// GetStats retrieves row counts and the per-type fact breakdown.
func (d *SQLiteDriver) GetStats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{
		FactsByType:   make(map[string]int64),
		LastRetrieved: time.Now().UTC(),
	}

	counts := map[string]*int64{
		`SELECT COUNT(*) FROM persons`: &stats.PersonCount,
		`SELECT COUNT(*) FROM facts`:   &stats.FactCount,
		`SELECT COUNT(*) FROM rules`:   &stats.RuleCount,
	}
	for query, dest := range counts {
		if err := d.db.QueryRowContext(ctx, query).Scan(dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	rows, err := d.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM facts GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count facts by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan fact count: %w", err)
		}
		stats.FactsByType[t] = n
	}
	return stats, rows.Err()
}

// CreateIndices creates the secondary indices used by name resolution and
// relation-type listing.
func (d *SQLiteDriver) CreateIndices(ctx context.Context) error {
	indices := []string{
		`CREATE INDEX IF NOT EXISTS idx_persons_name ON persons(name)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_type ON facts(type)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_from ON facts(from_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_to ON facts(to_id)`,
	}
	for _, stmt := range indices {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Clear removes all persons, facts, and rules.
func (d *SQLiteDriver) Clear(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"facts", "persons", "rules"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

// Provider returns GraphProviderSQLite.
func (d *SQLiteDriver) Provider() GraphProvider {
	return GraphProviderSQLite
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*types.Person, error) {
	var p types.Person
	var data string
	if err := row.Scan(&p.ID, &p.Name, &data); err != nil {
		return nil, err
	}
	var err error
	if p.Data, err = unmarshalDocument(data); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPersons(rows *sql.Rows) ([]*types.Person, error) {
	persons := []*types.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func marshalDocument(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(encoded), nil
}

func unmarshalDocument(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return data, nil
}

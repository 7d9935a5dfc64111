package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/soundprediction/kinship/pkg/types"
)

// Badger keyspace layout. Name index entries carry no value; the person id
// is the last key segment.
const (
	badgerPersonPrefix = "person/"
	badgerNamePrefix   = "name/"
	badgerFactPrefix   = "fact/"
	badgerRulePrefix   = "rule/"
)

// BadgerDriver implements GraphDriver over an embedded Badger key-value
// store. It trades the relational queries of SQLite for a pure-Go build
// with no cgo requirement.
type BadgerDriver struct {
	db      *badger.DB
	factSeq *badger.Sequence
}

// NewBadgerDriver opens (or creates) a Badger database at path.
func NewBadgerDriver(path string) (*BadgerDriver, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database %s: %w", path, err)
	}

	factSeq, err := db.GetSequence([]byte("seq/fact"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fact sequence: %w", err)
	}

	return &BadgerDriver{db: db, factSeq: factSeq}, nil
}

func personKey(id string) []byte { return []byte(badgerPersonPrefix + id) }
func nameKey(name, id string) []byte {
	return []byte(badgerNamePrefix + name + "/" + id)
}
func ruleKey(name string) []byte { return []byte(badgerRulePrefix + name) }
func factKey(seq uint64) []byte  { return []byte(fmt.Sprintf("%s%020d", badgerFactPrefix, seq)) }

func (d *BadgerDriver) UpsertPerson(ctx context.Context, person *types.Person) error {
	if err := person.Validate(); err != nil {
		return err
	}

	encoded, err := json.Marshal(person)
	if err != nil {
		return fmt.Errorf("failed to encode person: %w", err)
	}

	return d.db.Update(func(txn *badger.Txn) error {
		// Drop the old name index entry if the person was renamed.
		if item, err := txn.Get(personKey(person.ID)); err == nil {
			var prev types.Person
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); err != nil {
				return err
			}
			if prev.Name != person.Name {
				if err := txn.Delete(nameKey(prev.Name, prev.ID)); err != nil {
					return err
				}
			}
		}

		if err := txn.Set(personKey(person.ID), encoded); err != nil {
			return err
		}
		return txn.Set(nameKey(person.Name, person.ID), nil)
	})
}

func (d *BadgerDriver) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	var person types.Person
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(personKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &person)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}
	return &person, nil
}

func (d *BadgerDriver) GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error) {
	prefix := []byte(badgerNamePrefix + name + "/")

	ids := []string{}
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan name index: %w", err)
	}

	sort.Strings(ids)
	persons := []*types.Person{}
	for _, id := range ids {
		p, err := d.GetPerson(ctx, id)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, nil
}

func (d *BadgerDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	return d.scanPersons(0)
}

func (d *BadgerDriver) SamplePersons(ctx context.Context, limit int) ([]*types.Person, error) {
	return d.scanPersons(limit)
}

func (d *BadgerDriver) scanPersons(limit int) ([]*types.Person, error) {
	prefix := []byte(badgerPersonPrefix)
	persons := []*types.Person{}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(persons) >= limit {
				break
			}
			var p types.Person
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			persons = append(persons, &p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan persons: %w", err)
	}
	return persons, nil
}

func (d *BadgerDriver) InsertFact(ctx context.Context, fact *types.Fact) error {
	if err := fact.Validate(); err != nil {
		return err
	}

	encoded, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("failed to encode fact: %w", err)
	}

	seq, err := d.factSeq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance fact sequence: %w", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(factKey(seq), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to insert fact %s: %w", fact.Type, err)
	}
	return nil
}

func (d *BadgerDriver) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	prefix := []byte(badgerFactPrefix)
	facts := []*types.Fact{}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var f types.Fact
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				return err
			}
			facts = append(facts, &f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	return facts, nil
}

func (d *BadgerDriver) ListRelationTypes(ctx context.Context) ([]string, error) {
	facts, err := d.ListFacts(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	relationTypes := []string{}
	for _, f := range facts {
		if !seen[f.Type] {
			seen[f.Type] = true
			relationTypes = append(relationTypes, f.Type)
		}
	}
	sort.Strings(relationTypes)
	return relationTypes, nil
}

func (d *BadgerDriver) UpsertRule(ctx context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	encoded, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ruleKey(rule.Name), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.Name, err)
	}
	return nil
}

func (d *BadgerDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	var rule types.Rule
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ruleKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rule)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", name, err)
	}
	return &rule, nil
}

func (d *BadgerDriver) ListRules(ctx context.Context) ([]*types.Rule, error) {
	prefix := []byte(badgerRulePrefix)
	rules := []*types.Rule{}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r types.Rule
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			rules = append(rules, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (d *BadgerDriver) GetStats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{
		FactsByType:   make(map[string]int64),
		LastRetrieved: time.Now().UTC(),
	}

	persons, err := d.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	stats.PersonCount = int64(len(persons))

	facts, err := d.ListFacts(ctx)
	if err != nil {
		return nil, err
	}
	stats.FactCount = int64(len(facts))
	for _, f := range facts {
		stats.FactsByType[f.Type]++
	}

	rules, err := d.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	stats.RuleCount = int64(len(rules))

	return stats, nil
}

func (d *BadgerDriver) CreateIndices(ctx context.Context) error {
	// The name index is maintained on every write; nothing to build.
	return nil
}

func (d *BadgerDriver) Clear(ctx context.Context) error {
	if err := d.db.DropAll(); err != nil {
		return fmt.Errorf("failed to clear badger database: %w", err)
	}
	return nil
}

func (d *BadgerDriver) Close() error {
	if err := d.factSeq.Release(); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to release fact sequence: %w", err)
	}
	return d.db.Close()
}

func (d *BadgerDriver) Provider() GraphProvider {
	return GraphProviderBadger
}

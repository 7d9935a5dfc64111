package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/kinship/pkg/types"
)

// MemoryDriver implements GraphDriver with in-process maps. Nothing is
// persisted; it exists for tests and for ephemeral agent sessions.
type MemoryDriver struct {
	mu      sync.RWMutex
	persons map[string]*types.Person
	order   []string // person ids in insertion order
	facts   []*types.Fact
	rules   map[string]*types.Rule
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		persons: make(map[string]*types.Person),
		rules:   make(map[string]*types.Rule),
	}
}

func (d *MemoryDriver) UpsertPerson(ctx context.Context, person *types.Person) error {
	if err := person.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.persons[person.ID]; !exists {
		d.order = append(d.order, person.ID)
	}
	d.persons[person.ID] = clonePerson(person)
	return nil
}

func (d *MemoryDriver) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	person, ok := d.persons[id]
	if !ok {
		return nil, ErrPersonNotFound
	}
	return clonePerson(person), nil
}

func (d *MemoryDriver) GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matches := []*types.Person{}
	for _, id := range d.order {
		if p := d.persons[id]; p.Name == name {
			matches = append(matches, clonePerson(p))
		}
	}
	return matches, nil
}

func (d *MemoryDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	persons := make([]*types.Person, 0, len(d.order))
	for _, id := range d.order {
		persons = append(persons, clonePerson(d.persons[id]))
	}
	return persons, nil
}

func (d *MemoryDriver) SamplePersons(ctx context.Context, limit int) ([]*types.Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	persons := []*types.Person{}
	for i := len(d.order) - 1; i >= 0 && len(persons) < limit; i-- {
		persons = append(persons, clonePerson(d.persons[d.order[i]]))
	}
	return persons, nil
}

func (d *MemoryDriver) InsertFact(ctx context.Context, fact *types.Fact) error {
	if err := fact.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.facts = append(d.facts, cloneFact(fact))
	return nil
}

func (d *MemoryDriver) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	facts := make([]*types.Fact, len(d.facts))
	for i, f := range d.facts {
		facts[i] = cloneFact(f)
	}
	return facts, nil
}

func (d *MemoryDriver) ListRelationTypes(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]bool)
	relationTypes := []string{}
	for _, f := range d.facts {
		if !seen[f.Type] {
			seen[f.Type] = true
			relationTypes = append(relationTypes, f.Type)
		}
	}
	sort.Strings(relationTypes)
	return relationTypes, nil
}

func (d *MemoryDriver) UpsertRule(ctx context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r := *rule
	d.rules[rule.Name] = &r
	return nil
}

func (d *MemoryDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rule, ok := d.rules[name]
	if !ok {
		return nil, ErrRuleNotFound
	}
	r := *rule
	return &r, nil
}

func (d *MemoryDriver) ListRules(ctx context.Context) ([]*types.Rule, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.rules))
	for name := range d.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]*types.Rule, len(names))
	for i, name := range names {
		r := *d.rules[name]
		rules[i] = &r
	}
	return rules, nil
}

func (d *MemoryDriver) GetStats(ctx context.Context) (*GraphStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &GraphStats{
		PersonCount:   int64(len(d.persons)),
		FactCount:     int64(len(d.facts)),
		RuleCount:     int64(len(d.rules)),
		FactsByType:   make(map[string]int64),
		LastRetrieved: time.Now().UTC(),
	}
	for _, f := range d.facts {
		stats.FactsByType[f.Type]++
	}
	return stats, nil
}

func (d *MemoryDriver) CreateIndices(ctx context.Context) error {
	return nil
}

func (d *MemoryDriver) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.persons = make(map[string]*types.Person)
	d.order = nil
	d.facts = nil
	d.rules = make(map[string]*types.Rule)
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}

func (d *MemoryDriver) Provider() GraphProvider {
	return GraphProviderMemory
}

func clonePerson(p *types.Person) *types.Person {
	clone := &types.Person{ID: p.ID, Name: p.Name}
	if p.Data != nil {
		clone.Data = make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			clone.Data[k] = v
		}
	}
	return clone
}

func cloneFact(f *types.Fact) *types.Fact {
	clone := &types.Fact{FromID: f.FromID, ToID: f.ToID, Type: f.Type}
	if f.Data != nil {
		clone.Data = make(map[string]any, len(f.Data))
		for k, v := range f.Data {
			clone.Data[k] = v
		}
	}
	return clone
}

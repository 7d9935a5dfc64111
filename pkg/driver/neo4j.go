package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/soundprediction/kinship/pkg/types"
)

// Neo4jDriver implements GraphDriver against a Neo4j server. Persons are
// (:Person) nodes, facts are [:FACT {type}] relationships, and rules live on
// (:Rule) nodes. Attribute documents are stored as JSON strings in the
// `data` property.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:   client,
		database: database,
	}, nil
}

func (n *Neo4jDriver) UpsertPerson(ctx context.Context, person *types.Person) error {
	if err := person.Validate(); err != nil {
		return err
	}

	data, err := marshalDocument(person.Data)
	if err != nil {
		return err
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (p:Person {id: $id})
			SET p.name = $name, p.data = $data
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":   person.ID,
			"name": person.Name,
			"data": data,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert person %s: %w", person.ID, err)
	}
	return nil
}

func (n *Neo4jDriver) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	persons, err := n.queryPersons(ctx, `MATCH (p:Person {id: $id}) RETURN p.id, p.name, p.data`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(persons) == 0 {
		return nil, ErrPersonNotFound
	}
	return persons[0], nil
}

func (n *Neo4jDriver) GetPersonsByName(ctx context.Context, name string) ([]*types.Person, error) {
	return n.queryPersons(ctx, `MATCH (p:Person {name: $name}) RETURN p.id, p.name, p.data ORDER BY p.id`,
		map[string]any{"name": name})
}

func (n *Neo4jDriver) ListPersons(ctx context.Context) ([]*types.Person, error) {
	return n.queryPersons(ctx, `MATCH (p:Person) RETURN p.id, p.name, p.data ORDER BY p.id`, nil)
}

func (n *Neo4jDriver) SamplePersons(ctx context.Context, limit int) ([]*types.Person, error) {
	return n.queryPersons(ctx, `MATCH (p:Person) RETURN p.id, p.name, p.data LIMIT $limit`,
		map[string]any{"limit": limit})
}

func (n *Neo4jDriver) queryPersons(ctx context.Context, query string, params map[string]any) ([]*types.Person, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		persons := []*types.Person{}
		for res.Next(ctx) {
			record := res.Record()
			p := &types.Person{}
			if v, ok := record.Values[0].(string); ok {
				p.ID = v
			}
			if v, ok := record.Values[1].(string); ok {
				p.Name = v
			}
			if v, ok := record.Values[2].(string); ok {
				if p.Data, err = unmarshalDocument(v); err != nil {
					return nil, err
				}
			}
			persons = append(persons, p)
		}
		return persons, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	return result.([]*types.Person), nil
}

func (n *Neo4jDriver) InsertFact(ctx context.Context, fact *types.Fact) error {
	if err := fact.Validate(); err != nil {
		return err
	}

	data, err := marshalDocument(fact.Data)
	if err != nil {
		return err
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Person {id: $from_id}), (b:Person {id: $to_id})
			CREATE (a)-[:FACT {type: $type, data: $data}]->(b)
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"from_id": fact.FromID,
			"to_id":   fact.ToID,
			"type":    fact.Type,
			"data":    data,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to insert fact %s: %w", fact.Type, err)
	}
	return nil
}

func (n *Neo4jDriver) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Person)-[f:FACT]->(b:Person)
			RETURN a.id, b.id, f.type, f.data
		`
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		facts := []*types.Fact{}
		for res.Next(ctx) {
			record := res.Record()
			f := &types.Fact{}
			if v, ok := record.Values[0].(string); ok {
				f.FromID = v
			}
			if v, ok := record.Values[1].(string); ok {
				f.ToID = v
			}
			if v, ok := record.Values[2].(string); ok {
				f.Type = v
			}
			if v, ok := record.Values[3].(string); ok {
				if f.Data, err = unmarshalDocument(v); err != nil {
					return nil, err
				}
			}
			facts = append(facts, f)
		}
		return facts, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	return result.([]*types.Fact), nil
}

func (n *Neo4jDriver) ListRelationTypes(ctx context.Context) ([]string, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH ()-[f:FACT]->() RETURN DISTINCT f.type`, nil)
		if err != nil {
			return nil, err
		}

		relationTypes := []string{}
		for res.Next(ctx) {
			if v, ok := res.Record().Values[0].(string); ok {
				relationTypes = append(relationTypes, v)
			}
		}
		return relationTypes, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list relation types: %w", err)
	}

	relationTypes := result.([]string)
	sort.Strings(relationTypes)
	return relationTypes, nil
}

func (n *Neo4jDriver) UpsertRule(ctx context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (r:Rule {name: $name})
			SET r.body = $body, r.description = $description
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"name":        rule.Name,
			"body":        rule.Body,
			"description": rule.Description,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.Name, err)
	}
	return nil
}

func (n *Neo4jDriver) GetRule(ctx context.Context, name string) (*types.Rule, error) {
	rules, err := n.queryRules(ctx, `MATCH (r:Rule {name: $name}) RETURN r.name, r.body, r.description`,
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrRuleNotFound
	}
	return rules[0], nil
}

func (n *Neo4jDriver) ListRules(ctx context.Context) ([]*types.Rule, error) {
	return n.queryRules(ctx, `MATCH (r:Rule) RETURN r.name, r.body, r.description ORDER BY r.name`, nil)
}

func (n *Neo4jDriver) queryRules(ctx context.Context, query string, params map[string]any) ([]*types.Rule, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		rules := []*types.Rule{}
		for res.Next(ctx) {
			record := res.Record()
			r := &types.Rule{}
			if v, ok := record.Values[0].(string); ok {
				r.Name = v
			}
			if v, ok := record.Values[1].(string); ok {
				r.Body = v
			}
			if v, ok := record.Values[2].(string); ok {
				r.Description = v
			}
			rules = append(rules, r)
		}
		return rules, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return result.([]*types.Rule), nil
}

func (n *Neo4jDriver) GetStats(ctx context.Context) (*GraphStats, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := &GraphStats{
			FactsByType:   make(map[string]int64),
			LastRetrieved: time.Now().UTC(),
		}

		res, err := tx.Run(ctx, `MATCH (p:Person) RETURN count(p)`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			stats.PersonCount, _ = res.Record().Values[0].(int64)
		}

		res, err = tx.Run(ctx, `MATCH (r:Rule) RETURN count(r)`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			stats.RuleCount, _ = res.Record().Values[0].(int64)
		}

		res, err = tx.Run(ctx, `MATCH ()-[f:FACT]->() RETURN f.type, count(f)`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			record := res.Record()
			t, _ := record.Values[0].(string)
			n, _ := record.Values[1].(int64)
			stats.FactsByType[t] = n
			stats.FactCount += n
		}
		return stats, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return result.(*GraphStats), nil
}

func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	indices := []string{
		`CREATE CONSTRAINT person_id IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT rule_name IF NOT EXISTS FOR (r:Rule) REQUIRE r.name IS UNIQUE`,
		`CREATE INDEX person_name IF NOT EXISTS FOR (p:Person) ON (p.name)`,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range indices {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}
	return nil
}

func (n *Neo4jDriver) Clear(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (p:Person) DETACH DELETE p`, nil); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `MATCH (r:Rule) DELETE r`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

func (n *Neo4jDriver) Close() error {
	return n.client.Close(context.Background())
}

func (n *Neo4jDriver) Provider() GraphProvider {
	return GraphProviderNeo4j
}

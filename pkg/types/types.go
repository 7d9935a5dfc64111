package types

import (
	"errors"
)

// Validation errors shared across types.
var (
	ErrEmptyID    = errors.New("id cannot be empty")
	ErrEmptyName  = errors.New("name cannot be empty")
	ErrEmptyType  = errors.New("fact type cannot be empty")
	ErrEmptyBody  = errors.New("rule body cannot be empty")
	ErrEmptyRule  = errors.New("rule name cannot be empty")
	ErrMissingEnd = errors.New("fact endpoints cannot be empty")
)

// ContextKey is the type used for values kinship places on a context.Context.
type ContextKey string

const (
	ContextKeyUserID        ContextKey = "kinship_user_id"
	ContextKeySessionID     ContextKey = "kinship_session_id"
	ContextKeyRequestSource ContextKey = "kinship_request_source"
)

// Person is a node in the relationship graph.
//
// ID is a generated UUID and never changes. Name is a display name and is not
// required to be unique; resolution by name happens at the API layer. Data is
// an open JSON document of attributes.
type Person struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// Validate checks that the person is well-formed for persistence.
func (p *Person) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if p.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// MergeData merges updates into the person's document. Top-level keys are
// merged last-write-wins; keys absent from updates are preserved.
func (p *Person) MergeData(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	if p.Data == nil {
		p.Data = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		p.Data[k] = v
	}
}

// Fact is a directed, typed relationship between two persons.
//
// Type is an open vocabulary string such as "parent_of" or "mentor_of".
// Multiple facts may exist between the same ordered pair of persons. A fact
// that models a symmetric relationship is stored once in the direction it was
// asserted; queries opt into symmetry via the undirected/3 prelude predicate.
type Fact struct {
	FromID string         `json:"from_id"`
	ToID   string         `json:"to_id"`
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
}

// Validate checks that the fact is well-formed for persistence.
func (f *Fact) Validate() error {
	if f.FromID == "" || f.ToID == "" {
		return ErrMissingEnd
	}
	if f.Type == "" {
		return ErrEmptyType
	}
	return nil
}

// Rule is a named inference rule. Body holds one or more Datalog clauses,
// stored verbatim; the rule is parsed only when a query runs. At most one
// body exists per name; re-adding a name replaces the body.
type Rule struct {
	Name        string `json:"name"`
	Body        string `json:"body"`
	Description string `json:"description,omitempty"`
}

// Validate checks that the rule is well-formed for persistence.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return ErrEmptyRule
	}
	if r.Body == "" {
		return ErrEmptyBody
	}
	return nil
}

package dto

import (
	"errors"
	"strings"
)

// MaxDocumentLength bounds the raw JSON document accepted on writes.
const MaxDocumentLength = 64 * 1024

// ErrDocumentTooLong is returned when a document exceeds MaxDocumentLength.
var ErrDocumentTooLong = errors.New("document exceeds maximum length")

// AddPersonRequest creates a person. Data is an optional JSON object.
type AddPersonRequest struct {
	Name string `json:"name" binding:"required"`
	Data string `json:"data,omitempty"`
}

// Validate performs validation on AddPersonRequest
func (r *AddPersonRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name cannot be empty")
	}
	if len(r.Data) > MaxDocumentLength {
		return ErrDocumentTooLong
	}
	return nil
}

// UpdatePersonRequest merges attributes into an existing person document.
type UpdatePersonRequest struct {
	Data string `json:"data" binding:"required"`
}

// Validate performs validation on UpdatePersonRequest
func (r *UpdatePersonRequest) Validate() error {
	if strings.TrimSpace(r.Data) == "" {
		return errors.New("data cannot be empty")
	}
	if len(r.Data) > MaxDocumentLength {
		return ErrDocumentTooLong
	}
	return nil
}

// AddFactRequest records a relationship between two persons by name.
type AddFactRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
	Type string `json:"type" binding:"required"`
	Data string `json:"data,omitempty"`
}

// Validate performs validation on AddFactRequest
func (r *AddFactRequest) Validate() error {
	if strings.TrimSpace(r.From) == "" {
		return errors.New("from cannot be empty")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("to cannot be empty")
	}
	if strings.TrimSpace(r.Type) == "" {
		return errors.New("type cannot be empty")
	}
	if len(r.Data) > MaxDocumentLength {
		return ErrDocumentTooLong
	}
	return nil
}

// AddRuleRequest registers a named Datalog rule.
type AddRuleRequest struct {
	Name        string `json:"name" binding:"required"`
	Body        string `json:"body" binding:"required"`
	Description string `json:"description,omitempty"`
}

// Validate performs validation on AddRuleRequest
func (r *AddRuleRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name cannot be empty")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("body cannot be empty")
	}
	return nil
}

// QueryRequest evaluates a Datalog query.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Validate performs validation on QueryRequest
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query cannot be empty")
	}
	return nil
}

// Result represents a generic API result
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Package record implements the entity-attribute-value record store. A
// record is an identity plus independent field/value entries; values are
// typed by their field's semantic type.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// ErrNotFound is returned when a record does not exist in the directory.
var ErrNotFound = errors.New("record not found")

// RecordValue is one stored (field, value) pair.
type RecordValue struct {
	FieldID string      `json:"field_id"`
	Value   types.Value `json:"value"`
}

// Record is one entry of a directory. Values are in field display order and
// hold at most one entry per field; blank fields have no entry.
type Record struct {
	ID          string        `json:"id"`
	DirectoryID string        `json:"directory_id"`
	CompanyID   string        `json:"company_id,omitempty"`
	Values      []RecordValue `json:"values"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Value returns the value stored for a field, or nil when blank.
func (r *Record) Value(fieldID string) types.Value {
	for _, v := range r.Values {
		if v.FieldID == fieldID {
			return v.Value
		}
	}
	return nil
}

// Input is a raw value submitted for a field. A nil or empty Value clears
// the field.
type Input struct {
	FieldID string `json:"field_id" validate:"required"`
	Value   any    `json:"value"`
}

// Page is one page of a record listing together with the directory schema.
type Page struct {
	Fields   []*schema.Field `json:"fields"`
	Records  []*Record       `json:"directoryRecords"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// Store persists directory records. Every method takes the owning directory
// so values can be coerced and filters resolved against its schema.
type Store interface {
	// Create stores a new record. Required fields must be present.
	Create(ctx context.Context, dir *schema.Directory, companyID string, values []Input) (*Record, error)

	// Get returns one record.
	Get(ctx context.Context, dir *schema.Directory, id string) (*Record, error)

	// Update replaces the values of the supplied fields only.
	Update(ctx context.Context, dir *schema.Directory, id string, values []Input) (*Record, error)

	// Replace sets the full value set; fields not supplied become blank.
	Replace(ctx context.Context, dir *schema.Directory, id string, values []Input) (*Record, error)

	// Delete removes a record and its values.
	Delete(ctx context.Context, dir *schema.Directory, id string) error

	// DeleteByGroup removes every record whose groupFieldID value equals
	// value, returning the ids removed.
	DeleteByGroup(ctx context.Context, dir *schema.Directory, groupFieldID, value string) ([]string, error)

	// List returns a filtered, sorted page of records.
	List(ctx context.Context, dir *schema.Directory, p query.ListParams) (*Page, error)
}

// FieldError is a value that failed validation for one field.
type FieldError struct {
	FieldID string `json:"field_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError lists every invalid value of a mutation. No values are
// written when it is returned.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		label := fe.Field
		if label == "" {
			label = fe.FieldID
		}
		parts[i] = label + ": " + fe.Message
	}
	return "invalid record values: " + strings.Join(parts, "; ")
}

// TransportError wraps a failure of the underlying database. Reads are
// idempotent and may be retried; mutations are not.
type TransportError struct {
	Op         string
	Err        error
	Idempotent bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the failed operation may be repeated safely.
func (e *TransportError) Retryable() bool { return e.Idempotent }

func readError(op string, err error) error {
	return &TransportError{Op: op, Err: err, Idempotent: true}
}

func writeError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

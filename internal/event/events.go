package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	RecordCreated        = "record_created"
	RecordUpdated        = "record_updated"
	RecordDeleted        = "record_deleted"
	RecordsBulkDeleted   = "records_bulk_deleted"
	DirectoryRegistered  = "directory_registered"
	CascadingStored      = "cascading_stored"
	CascadingValuesSaved = "cascading_values_saved"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID          string
	EventType   string
	OccurredAt  time.Time
	DirectoryID string
	RecordIDs   []string // records the event touched; empty for directory-level events
	Summary     string
	Payload     json.RawMessage
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Record events ────────────────────────────────────────────────────────────

// RecordChangedPayload carries the field values written by a create or update.
type RecordChangedPayload struct {
	RecordID  string         `json:"record_id"`
	CompanyID string         `json:"company_id,omitempty"`
	Values    map[string]any `json:"values"` // field id -> value; nil clears
	Replaced  bool           `json:"replaced,omitempty"`
}

func NewRecordCreated(directoryID string, p RecordChangedPayload) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   RecordCreated,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		RecordIDs:   []string{p.RecordID},
		Summary:     fmt.Sprintf("Record %s created with %d values", short(p.RecordID), len(p.Values)),
		Payload:     mustJSON(p),
	}
}

func NewRecordUpdated(directoryID string, p RecordChangedPayload) DomainEvent {
	verb := "updated"
	if p.Replaced {
		verb = "replaced"
	}
	return DomainEvent{
		ID:          newID(),
		EventType:   RecordUpdated,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		RecordIDs:   []string{p.RecordID},
		Summary:     fmt.Sprintf("Record %s %s (%d fields)", short(p.RecordID), verb, len(p.Values)),
		Payload:     mustJSON(p),
	}
}

func NewRecordDeleted(directoryID, recordID string) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   RecordDeleted,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		RecordIDs:   []string{recordID},
		Summary:     fmt.Sprintf("Record %s deleted", short(recordID)),
		Payload:     mustJSON(map[string]string{"record_id": recordID}),
	}
}

// BulkDeletedPayload identifies the group removed by a bulk delete.
type BulkDeletedPayload struct {
	GroupFieldID string   `json:"group_field_id"`
	GroupValue   string   `json:"group_value"`
	RecordIDs    []string `json:"record_ids"`
}

func NewRecordsBulkDeleted(directoryID string, p BulkDeletedPayload) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   RecordsBulkDeleted,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		RecordIDs:   p.RecordIDs,
		Summary:     fmt.Sprintf("%d records deleted where %s = %q", len(p.RecordIDs), short(p.GroupFieldID), p.GroupValue),
		Payload:     mustJSON(p),
	}
}

// ── Directory events ─────────────────────────────────────────────────────────

// DirectoryRegisteredPayload describes a directory added at runtime.
type DirectoryRegisteredPayload struct {
	Name       string `json:"name"`
	FieldCount int    `json:"field_count"`
}

func NewDirectoryRegistered(directoryID string, p DirectoryRegisteredPayload) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   DirectoryRegistered,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		Summary:     fmt.Sprintf("Directory %s registered with %d fields", p.Name, p.FieldCount),
		Payload:     mustJSON(p),
	}
}

// ── Cascading events ─────────────────────────────────────────────────────────

// CascadingPayload describes stored dependent selections.
type CascadingPayload struct {
	ParentFieldID string `json:"parent_field_id,omitempty"`
	ParentValue   string `json:"parent_value,omitempty"`
	RecordID      string `json:"record_id,omitempty"`
	Selections    any    `json:"selections"`
	Count         int    `json:"count"`
}

func NewCascadingStored(directoryID string, p CascadingPayload) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   CascadingStored,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		Summary:     fmt.Sprintf("%d cascading selections stored for %s = %q", p.Count, short(p.ParentFieldID), p.ParentValue),
		Payload:     mustJSON(p),
	}
}

func NewCascadingValuesSaved(directoryID string, p CascadingPayload) DomainEvent {
	return DomainEvent{
		ID:          newID(),
		EventType:   CascadingValuesSaved,
		OccurredAt:  time.Now(),
		DirectoryID: directoryID,
		RecordIDs:   []string{p.RecordID},
		Summary:     fmt.Sprintf("%d cascading values saved on record %s", p.Count, short(p.RecordID)),
		Payload:     mustJSON(p),
	}
}

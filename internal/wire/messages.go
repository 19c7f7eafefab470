// Package wire defines the WebSocket protocol of interactive filter
// sessions and serves it.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/cascade"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/session"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "input", "accept", "clear", "commit", "apply", "remove_filter", "clear_filters", "sort", "page", "validate", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// InputData is the payload for "input" messages. Seq increases with every
// keystroke; older sequence numbers are ignored.
type InputData struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

// AcceptData is the payload for "accept" messages.
type AcceptData struct {
	Item autocomplete.CompletionItem `json:"item"`
}

// CommitData is the payload for "commit" messages.
type CommitData struct {
	Value string `json:"value"`
}

// RemoveFilterData is the payload for "remove_filter" messages.
type RemoveFilterData struct {
	Key string `json:"key"`
}

// SortData is the payload for "sort" messages.
type SortData struct {
	FieldID   string `json:"field_id"`
	Direction string `json:"direction"`
}

// PageData is the payload for "page" messages.
type PageData struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ValidateData is the payload for "validate" messages.
type ValidateData struct {
	Selections []cascade.Selection `json:"selections"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "state", "records", "validation", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID   string `json:"session_id"`
	DirectoryID string `json:"directory_id"`
}

// StateData carries the session state after an event.
type StateData struct {
	State session.State `json:"state"`
}

// RecordsData carries the records matching the active filters.
type RecordsData struct {
	Filters query.ActiveFilters `json:"filters"`
	Sorting string              `json:"sort,omitempty"`
	Page    *record.Page        `json:"page"`
}

// ValidationData carries the results of the latest debounced validation.
type ValidationData struct {
	Results []cascade.ValidationResult `json:"results"`
	Valid   bool                       `json:"valid"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

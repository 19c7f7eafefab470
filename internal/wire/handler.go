package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/async"
	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/cascade"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/session"
)

// Directories resolves the directory a session filters.
type Directories interface {
	Directory(id string) (*schema.Directory, error)
}

// Validator checks cascading selections.
type Validator interface {
	Validate(ctx context.Context, directoryID string, sels []cascade.Selection) ([]cascade.ValidationResult, error)
}

// Options configure a Handler.
type Options struct {
	// ValidationDebounce is the quiet interval before a validation runs.
	ValidationDebounce time.Duration
}

// Handler manages WebSocket connections for filter sessions.
type Handler struct {
	dirs      Directories
	records   record.Store
	engine    *autocomplete.Engine
	validator Validator
	sessions  *session.Manager
	debounce  time.Duration
	log       logrus.FieldLogger
}

// NewHandler creates a WebSocket handler with all dependencies.
func NewHandler(
	dirs Directories,
	records record.Store,
	engine *autocomplete.Engine,
	validator Validator,
	sessions *session.Manager,
	opts Options,
	log logrus.FieldLogger,
) *Handler {
	if opts.ValidationDebounce <= 0 {
		opts.ValidationDebounce = 300 * time.Millisecond
	}
	return &Handler{
		dirs:      dirs,
		records:   records,
		engine:    engine,
		validator: validator,
		sessions:  sessions,
		debounce:  opts.ValidationDebounce,
		log:       log,
	}
}

// client is the per-connection state of a session.
type client struct {
	h       *Handler
	conn    *websocket.Conn
	dir     *schema.Directory
	sess    *session.Session
	reducer session.Reducer
	company string
	log     logrus.FieldLogger

	lookups    async.Latest
	lookupRev  uint64
	listing    async.Latest
	validation *async.Debouncer[[]cascade.ValidationResult]

	mu   sync.Mutex
	page query.Page
}

// ServeHTTP upgrades to WebSocket and runs the message loop. The directory
// comes from the {id} route parameter; an existing session may be resumed
// with ?session_id=.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dir, err := h.dirs.Directory(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.WithError(err).Warn("wire: websocket accept")
		return
	}
	defer conn.CloseNow()

	reducer := session.Reducer{Fields: dir.FilterableFields(), Engine: h.engine}
	sess := h.sessions.Get(r.URL.Query().Get("session_id"))
	if sess == nil || sess.DirectoryID != dir.ID {
		sess = h.sessions.Create(dir.ID, reducer.Init(dir.ID))
	}

	c := &client{
		h:          h,
		conn:       conn,
		dir:        dir,
		sess:       sess,
		reducer:    reducer,
		company:    r.URL.Query().Get("company_id"),
		log:        h.log.WithFields(logrus.Fields{"session_id": sess.ID, "directory_id": dir.ID}),
		validation: async.NewDebouncer[[]cascade.ValidationResult](h.debounce),
		page:       query.Page{}.Normalize(),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.lookups.Stop()
		c.listing.Stop()
		c.validation.Stop()
	}()

	c.send(ctx, ServerMessage{
		Type: "session",
		Data: SessionData{SessionID: sess.ID, DirectoryID: dir.ID},
	})
	c.publish(ctx, "", sess.State())
	c.refresh(ctx, sess.State())

	// Message loop
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.WithField("status", websocket.CloseStatus(err)).Debug("wire: connection closed")
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg ClientMessage) {
	var ev session.Event
	switch msg.Type {
	case "input":
		var d InputData
		if !c.decode(ctx, msg, &d) {
			return
		}
		ev = session.InputChanged{Seq: d.Seq, Text: d.Text}
	case "accept":
		var d AcceptData
		if !c.decode(ctx, msg, &d) {
			return
		}
		ev = session.SuggestionAccepted{Item: d.Item}
	case "clear":
		ev = session.InputCleared{}
	case "commit":
		var d CommitData
		if !c.decode(ctx, msg, &d) {
			return
		}
		ev = session.ValueCommitted{Value: d.Value}
	case "apply":
		ev = session.ApplyRequested{}
	case "remove_filter":
		var d RemoveFilterData
		if !c.decode(ctx, msg, &d) {
			return
		}
		ev = session.FilterRemoved{Key: d.Key}
	case "clear_filters":
		ev = session.FiltersCleared{}
	case "sort":
		var d SortData
		if !c.decode(ctx, msg, &d) {
			return
		}
		dir, err := query.ParseDirection(d.Direction)
		if err != nil {
			c.sendError(ctx, msg.ID, "invalid_data", err.Error())
			return
		}
		ev = session.SortRequested{FieldID: d.FieldID, Direction: dir}
	case "page":
		var d PageData
		if !c.decode(ctx, msg, &d) {
			return
		}
		c.mu.Lock()
		c.page = query.Page{Number: d.Page, Size: d.PageSize}.Normalize()
		c.mu.Unlock()
		c.refresh(ctx, c.sess.State())
		return
	case "validate":
		var d ValidateData
		if !c.decode(ctx, msg, &d) {
			return
		}
		c.validate(ctx, msg.ID, d.Selections)
		return
	case "ping":
		c.send(ctx, ServerMessage{Type: "pong", RequestID: msg.ID})
		return
	default:
		c.sendError(ctx, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		return
	}

	before := c.sess.State()
	st := c.sess.Dispatch(c.reducer, ev)
	c.publish(ctx, msg.ID, st)
	if filtersChanged(before, st) {
		c.mu.Lock()
		c.page.Number = 1
		c.mu.Unlock()
		c.refresh(ctx, st)
	}
}

// publish sends the state and starts the relation lookup it waits for.
// A lookup for a newer revision supersedes the one in flight.
func (c *client) publish(ctx context.Context, requestID string, st session.State) {
	c.send(ctx, ServerMessage{Type: "state", RequestID: requestID, Data: StateData{State: st}})

	f, q, rev, ok := st.PendingLookup()
	if !ok || rev == c.lookupRev {
		return
	}
	c.lookupRev = rev
	lookupCtx, gen := c.lookups.Begin(ctx)
	go func() {
		items, err := c.h.engine.RelationCandidates(lookupCtx, f, q)
		if errors.Is(err, context.Canceled) {
			return
		}
		c.lookups.Deliver(gen, func() {
			st := c.sess.Dispatch(c.reducer, session.RelationLoaded{Revision: rev, Items: items, Err: err})
			if st.Revision == rev {
				c.send(ctx, ServerMessage{Type: "state", RequestID: requestID, Data: StateData{State: st}})
			}
		})
	}()
}

// refresh lists the records matching the state's active filters. Only the
// most recent listing is delivered.
func (c *client) refresh(ctx context.Context, st session.State) {
	c.mu.Lock()
	p := query.ListParams{
		CompanyID: c.company,
		Filters:   st.Active.Clone(),
		Sorting:   st.Sorting,
		Page:      c.page,
	}
	c.mu.Unlock()

	listCtx, gen := c.listing.Begin(ctx)
	go func() {
		page, err := c.h.records.List(listCtx, c.dir, p)
		if errors.Is(err, context.Canceled) {
			return
		}
		c.listing.Deliver(gen, func() {
			if err != nil {
				code := "list_error"
				if record.IsRetryable(err) {
					code = "transport_error"
				}
				c.log.WithError(err).Warn("wire: listing records")
				c.sendError(ctx, "", code, err.Error())
				return
			}
			c.send(ctx, ServerMessage{
				Type: "records",
				Data: RecordsData{Filters: p.Filters, Sorting: p.Sorting.Encode(), Page: page},
			})
		})
	}()
}

// validate debounces cascading validation; only the latest request is
// answered.
func (c *client) validate(ctx context.Context, requestID string, sels []cascade.Selection) {
	if c.h.validator == nil {
		c.sendError(ctx, requestID, "unsupported", "cascading validation is not configured")
		return
	}
	c.validation.Trigger(ctx,
		func(ctx context.Context) ([]cascade.ValidationResult, error) {
			return c.h.validator.Validate(ctx, c.dir.ID, sels)
		},
		func(results []cascade.ValidationResult, err error) {
			if err != nil {
				c.sendError(ctx, requestID, "validation_error", err.Error())
				return
			}
			c.send(ctx, ServerMessage{
				Type:      "validation",
				RequestID: requestID,
				Data:      ValidationData{Results: results, Valid: cascade.Valid(results)},
			})
		})
}

func filtersChanged(before, after session.State) bool {
	if len(before.Active) != len(after.Active) || before.Sorting.Encode() != after.Sorting.Encode() {
		return true
	}
	for k, v := range before.Active {
		if w, ok := after.Active[k]; !ok || w != v {
			return true
		}
	}
	return false
}

func (c *client) decode(ctx context.Context, msg ClientMessage, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(ctx, msg.ID, "invalid_data", "invalid "+msg.Type+" data")
		return false
	}
	return true
}

func (c *client) send(ctx context.Context, msg ServerMessage) {
	if err := wsjson.Write(ctx, c.conn, msg); err != nil && ctx.Err() == nil {
		c.log.WithError(err).Warn("wire: write error")
	}
}

func (c *client) sendError(ctx context.Context, requestID, code, message string) {
	c.send(ctx, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}

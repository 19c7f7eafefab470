// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/activity"
	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/cascade"
	"github.com/matthewbaird/dirconsole/internal/config"
	"github.com/matthewbaird/dirconsole/internal/event"
	"github.com/matthewbaird/dirconsole/internal/eventbus"
	"github.com/matthewbaird/dirconsole/internal/handler"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/session"
	"github.com/matthewbaird/dirconsole/internal/wire"
)

// Server holds the wired application: stores, the event bus, the filter
// session manager and the HTTP router.
type Server struct {
	cfg      *config.Config
	db       *sql.DB
	log      logrus.FieldLogger
	registry *schema.Registry
	bus      *eventbus.Bus
	sessions *session.Manager
	router   chi.Router
}

// New loads directory definitions and wires every component over db.
// Directories come from the optional CUE schema file and from the
// directories table.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, log logrus.FieldLogger) (*Server, error) {
	registry, err := loadRegistry(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	records := record.WithReadRetry(record.NewSQLStore(db), cfg.ReadRetries, cfg.ReadRetryBackoff)
	engine := autocomplete.New(registry, records, autocomplete.Options{
		CacheSize: cfg.RelationCacheSize,
		CacheTTL:  cfg.RelationCacheTTL,
	})
	resolver := cascade.NewResolver(registry, records, cascade.NewSQLStore(db))
	acts := activity.NewSQLStore(db)

	bus := eventbus.New(cfg.EventBufferSize, log)
	bus.Subscribe("log", eventbus.NewLogConsumer(log))
	bus.Subscribe("relation-cache", eventbus.NewCacheConsumer(engine))

	recorder := event.NewActivityRecorder(acts)
	recorder.SetPublisher(bus)
	handler.SetRecorder(recorder)
	handler.SetLogger(log)

	s := &Server{
		cfg:      cfg,
		db:       db,
		log:      log,
		registry: registry,
		bus:      bus,
		sessions: session.NewManager(cfg.SessionMaxAge, cfg.SessionIdleTimeout),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, handler.Recovery, handler.Logging)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	// --- Directories ---
	dh := handler.NewDirectoryHandler(registry, schema.NewSQLStore(db))
	r.Get("/v1/directories", dh.ListDirectories)
	r.Post("/v1/directories", dh.CreateDirectory)
	r.Get("/v1/directories/{id}/fields", dh.GetFields)

	// --- Records ---
	rh := handler.NewRecordHandler(registry, records)
	r.Get("/v1/directories/{id}/records", rh.ListRecords)
	r.Post("/v1/directories/{id}/records", rh.CreateRecord)
	r.Delete("/v1/directories/{id}/records", rh.DeleteByGroup)
	r.Get("/v1/directories/{id}/records/{recordID}", rh.GetRecord)
	r.Put("/v1/directories/{id}/records/{recordID}", rh.UpdateRecord)
	r.Delete("/v1/directories/{id}/records/{recordID}", rh.DeleteRecord)

	// --- Activity ---
	ah := handler.NewActivityHandler(acts)
	r.Get("/v1/directories/{id}/records/{recordID}/activity", ah.GetRecordActivity)
	r.Get("/v1/directories/{id}/activity", ah.SearchActivity)

	// --- Cascading fields ---
	ch := handler.NewCascadingHandler(resolver)
	r.Get("/v1/directories/{id}/cascading", ch.GetCascading)
	r.Put("/v1/directories/{id}/cascading", ch.PutCascading)
	r.Post("/v1/directories/{id}/cascading/validate", ch.ValidateSelections)
	r.Post("/v1/directories/{id}/cascading/selections", ch.StoreSelections)
	r.Get("/v1/directories/{id}/cascading/selections", ch.GetSelections)
	r.Get("/v1/directories/{id}/cascading/records", ch.FilteredRecords)
	r.Post("/v1/cascading/save-values", ch.SaveValues)
	r.Get("/v1/cascading/values/{recordID}", ch.GetValues)

	// --- Filter sessions ---
	fh := handler.NewFilterHandler(registry, engine)
	r.Get("/v1/directories/{id}/filter/parse", fh.Parse)
	wh := wire.NewHandler(registry, records, engine, resolver, s.sessions,
		wire.Options{ValidationDebounce: cfg.ValidationDebounce}, log)
	r.Get("/v1/directories/{id}/filter/ws", wh.ServeHTTP)

	s.router = r
	return s, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.bus.Start(ctx)
	go s.sessions.RunCleanup(time.Minute, ctx.Done())

	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{
			"addr":        s.cfg.Address,
			"directories": len(s.registry.Directories()),
		}).Info("server: listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.bus.Stop()
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.bus.Stop()
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server: stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// loadRegistry registers the directories of the schema file and those
// created at runtime. Stored definitions replace file definitions with the
// same id.
func loadRegistry(ctx context.Context, cfg *config.Config, db *sql.DB) (*schema.Registry, error) {
	var dirs []*schema.Directory
	if cfg.SchemaFile != "" {
		fileDirs, err := schema.LoadCUEFile(cfg.SchemaFile)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, fileDirs...)
	}

	stored, err := schema.NewSQLStore(db).LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored directories: %w", err)
	}
	byID := make(map[string]int, len(dirs))
	for i, d := range dirs {
		byID[d.ID] = i
	}
	for _, d := range stored {
		if i, ok := byID[d.ID]; ok {
			dirs[i] = d
			continue
		}
		dirs = append(dirs, d)
	}

	registry := schema.NewRegistry()
	if err := registry.RegisterAll(dirs); err != nil {
		return nil, fmt.Errorf("registering directories: %w", err)
	}
	return registry, nil
}

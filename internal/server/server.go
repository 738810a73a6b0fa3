// Package server orchestrates all components: NATS client, session journal, session manager, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/internal/config"
	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/db"
	"github.com/morezero/packet-router/pkg/events"
	"github.com/morezero/packet-router/pkg/router"
	"github.com/morezero/packet-router/pkg/semver"
	"github.com/morezero/packet-router/pkg/session"
)

const logPrefix = "server:server"

// Server is the packetd orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	store      SessionStore
	publisher  events.EventPublisher
	negotiator *semver.Negotiator
	manager    *session.Manager
	httpServer *http.Server
	// extra handlers registered on every session after the built-in ones
	handlers []func(*session.Session) router.Handler
}

// New creates a Server for cfg. Handlers add application routes to every session.
func New(cfg *config.Config, handlers ...func(*session.Session) router.Handler) *Server {
	return &Server{cfg: cfg, handlers: handlers}
}

// Run loads config, starts the server, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting packetd", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(cfg)
	if err := s.Start(ctx); err != nil {
		return err
	}

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler(), ReadHeaderTimeout: cfg.HealthCheckTimeout}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - packetd is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*cfg.RequestTimeout)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	err = s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// SetupLogging installs a text slog handler on stdout at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Start connects to NATS and, when configured, the database, then starts
// accepting sessions.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg

	negotiator, err := semver.NewNegotiator(cfg.ProtocolVersion, cfg.ProtocolConstraint)
	if err != nil {
		return fmt.Errorf("%s - protocol negotiation: %w", logPrefix, err)
	}
	s.negotiator = negotiator

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	subjects := commsutil.NewSubjects(cfg.SubjectPrefix)
	s.publisher = events.FanOut(events.NewCommsPublisher(nc, subjects), events.LogPublisher{})

	// Step 2: Session journal
	if cfg.JournalEnabled() {
		if err := s.openJournal(ctx); err != nil {
			nc.Close()
			return err
		}
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, session journal disabled", logPrefix))
	}

	// Step 3: Accept sessions
	s.manager = session.NewManager(nc, s.newRouter, session.Options{
		Subjects:       subjects,
		RequestTimeout: cfg.RequestTimeout,
		IdleTimeout:    cfg.SessionIdleTimeout,
		QueueSize:      cfg.SessionQueueSize,
	})
	if err := s.manager.Start(ctx); err != nil {
		s.closeResources()
		return fmt.Errorf("%s - failed to start session manager: %w", logPrefix, err)
	}
	return nil
}

func (s *Server) openJournal(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	repo := db.NewSessionRepository(pool)
	if _, err := repo.CloseDangling(ctx, time.Now()); err != nil {
		pool.Close()
		return err
	}
	s.pool = pool
	s.store = repo
	return nil
}

// newRouter is the session.RouterFactory: system routes, journal callbacks,
// then application handlers.
func (s *Server) newRouter(sess *session.Session) (*router.Router, error) {
	journal := NewJournalHandler(sess, s.store, s.publisher)
	handlers := []router.Handler{
		NewSystemHandler(sess, s.negotiator, journal.RecordVersion),
		journal,
	}
	for _, build := range s.handlers {
		handlers = append(handlers, build(sess))
	}

	r := router.New()
	if err := r.AddHandlers(handlers...); err != nil {
		return nil, err
	}
	return r, nil
}

// Shutdown disconnects every session gracefully and releases connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.manager != nil {
		err = s.manager.Close(ctx)
	}
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - NATS drain: %v", logPrefix, err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthOutput is the /health response body.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Sessions  int          `json:"sessions"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results. Database is omitted
// when the journal is disabled.
type HealthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

// Health reports NATS and database reachability.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	out.Checks.Comms = s.nc != nil && s.nc.IsConnected()
	if s.pool != nil {
		dbOk := s.pool.Ping(ctx) == nil
		out.Checks.Database = &dbOk
		if !dbOk {
			out.Status = "unhealthy"
		}
	}
	if !out.Checks.Comms {
		out.Status = "unhealthy"
	}
	if s.manager != nil {
		out.Sessions = s.manager.Count()
	}
	return out
}

// routeView is one entry of the /routes response.
type routeView struct {
	Name   string   `json:"name"`
	Rule   string   `json:"rule"`
	Index  int      `json:"index"`
	Params []string `json:"params"`
}

// Handler returns the HTTP mux serving /health, /ready and /routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.Health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.manager == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session query parameter is required"})
			return
		}
		if s.manager == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not started"})
			return
		}
		sess, ok := s.manager.Session(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		writeJSON(w, http.StatusOK, routeViews(sess.Routes()))
	})
	return mux
}

func routeViews(entries []router.RouteEntry) []routeView {
	out := make([]routeView, 0, len(entries))
	for _, e := range entries {
		params := make([]string, 0, len(e.Method.Params))
		for _, p := range e.Method.Params {
			params = append(params, p.Name)
		}
		out = append(out, routeView{Name: e.Name(), Rule: e.Rule, Index: e.Index, Params: params})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
	}
}

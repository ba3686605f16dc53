package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/joestump/sqlitekit/internal/config"
	"github.com/joestump/sqlitekit/internal/db"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 8 << 20

// Server is the HTTP server exposing a sqlitekit database as a JSON API.
type Server struct {
	cfg    *config.Config
	db     *db.DB
	mux    *http.ServeMux
	server *http.Server
}

// New creates a new web server bound to cfg.ListenAddr.
func New(cfg *config.Config, database *db.DB) *Server {
	s := &Server{
		cfg: cfg,
		db:  database,
		mux: http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      requestLogger(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler including request logging.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	log.WithFields(log.Fields{
		"addr": s.server.Addr,
		"db":   s.db.Path(),
	}).Info("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleAPIHealth)

	s.mux.HandleFunc("POST /api/v1/query", s.handleAPIQuery)
	s.mux.HandleFunc("POST /api/v1/scalar", s.handleAPIScalar)
	s.mux.HandleFunc("POST /api/v1/exec", s.handleAPIExec)
	s.mux.HandleFunc("POST /api/v1/batch", s.handleAPIBatch)
	s.mux.HandleFunc("POST /api/v1/upsert", s.handleAPIUpsert)

	s.mux.HandleFunc("PUT /api/v1/tables", s.handleAPIEnsureTable)
	s.mux.HandleFunc("GET /api/v1/tables/{name}/version", s.handleAPITableVersion)
}

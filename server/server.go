// Package server exposes artifact inspection over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/logging"
)

// Server inspects uploaded artifacts and keeps a catalog of the results
type Server struct {
	catalog    *catalog.Catalog
	addr       string
	config     *Config
	log        logr.Logger
	startTime  time.Time
	httpServer *http.Server
}

// Config configures the server
type Config struct {
	Addr            string
	EnableWebSocket bool
	MaxUploadSize   int64
	// CatalogPath is where the catalog is saved after each inspection; empty keeps it in memory
	CatalogPath string
	Version     string
	Decode      *artifact.Config
}

const DEFAULT_MAX_UPLOAD_SIZE = 512 << 20

// New creates a new HTTP server. cat may be nil.
func New(config *Config, cat *catalog.Catalog, log logr.Logger) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = DEFAULT_MAX_UPLOAD_SIZE
	}
	if config.Decode == nil {
		config.Decode = artifact.DefaultConfig()
		config.Decode.Observer = nil
	}
	if config.Decode.Observer == nil {
		decode := *config.Decode
		decode.Observer = logging.NewLogrObserver(log.WithName("decode"))
		config.Decode = &decode
	}
	if cat == nil {
		cat = catalog.NewCatalog()
	}

	s := &Server{
		catalog:   cat,
		addr:      config.Addr,
		config:    config,
		log:       log,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.createHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.addr, "websocket", s.config.EnableWebSocket)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// createHandler creates the HTTP handler with all routes
func (s *Server) createHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /inspect", s.handleInspect())
	mux.HandleFunc("GET /catalog.json", s.handleCatalogJSON())
	mux.HandleFunc("GET /catalog/{id}", s.handleCatalogEntry())
	mux.HandleFunc("GET /status", s.handleStatus())

	if s.config.EnableWebSocket {
		mux.HandleFunc("GET /ws", s.handleWebSocket())
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			s.handleRoot()(w, r)
			return
		}
		sendJSON(w, 404, map[string]string{"error": "not found"})
	})

	return s.logMiddleware(corsMiddleware(mux))
}

// GetStartTime returns when the server started
func (s *Server) GetStartTime() time.Time {
	return s.startTime
}

// Catalog returns the server's catalog
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// decodeConfig returns a per-request copy of the decode settings
func (s *Server) decodeConfig() *artifact.Config {
	cfg := *s.config.Decode
	cfg.SupportedVersions = append([]int(nil), s.config.Decode.SupportedVersions...)
	return &cfg
}

// record adds an entry to the catalog and persists it when configured
func (s *Server) record(e *catalog.Entry) {
	s.catalog.Add(e)
	if s.config.CatalogPath == "" {
		return
	}
	if err := s.catalog.Save(s.config.CatalogPath); err != nil {
		s.log.Error(err, "failed to save catalog", "path", s.config.CatalogPath)
	}
}

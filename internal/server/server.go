// Package server exposes the ingestion pipeline over HTTP: the parse API,
// the image proxy, locally cached images, health checks and an MCP endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kfreiman/feishuingest/internal/asset"
	"github.com/kfreiman/feishuingest/internal/ingest"
)

const (
	// ServiceName is reported by the health endpoints and the MCP handshake
	ServiceName = "feishuingest"
	// Version is reported by the health endpoints and the MCP handshake
	Version = "1.0.0"

	// ParsePath is the document ingestion endpoint
	ParsePath = "/api/parse-feishu"
)

// Config holds configuration for the HTTP server
type Config struct {
	Port           int
	ProxyPath      string
	ImageURLPrefix string
	AllowedOrigins []string
	RequestTimeout time.Duration
	// ProxyHosts are fetched by the image proxy besides the platform hosts
	ProxyHosts []string

	// Ingestor is nil when no app credentials are configured; parse calls then answer 500
	Ingestor ingest.Ingestor
	Fetcher  Fetcher
	// Store is checked by the readiness check
	Store asset.Store
	// Images serves locally cached images below ImageURLPrefix; optional
	Images http.Handler
	// Cache is pinged by the readiness check; optional
	Cache  Pinger
	Logger *slog.Logger
}

// Server encapsulates the HTTP router and the MCP server with all their dependencies
type Server struct {
	router    chi.Router
	mcpServer *mcp.Server
	ingestor  ingest.Ingestor
	fetcher   Fetcher
	store     asset.Store
	cache     Pinger
	logger    *slog.Logger
	config    Config
}

// NewServer creates a new server with the given configuration
func NewServer(cfg Config) (*Server, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("server requires a fetcher for the image proxy")
	}
	if cfg.ProxyPath == "" {
		cfg.ProxyPath = "/api/proxy-image"
	}
	if cfg.ImageURLPrefix == "" {
		cfg.ImageURLPrefix = "/images/feishu"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		ingestor: cfg.Ingestor,
		fetcher:  cfg.Fetcher,
		store:    cfg.Store,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		config:   cfg,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    ServiceName,
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: ServerInstructions,
	})
	s.registerTools()

	s.router = s.routes()
	return s, nil
}

// registerTools registers all tool handlers
func (s *Server) registerTools() {
	ingestTool := NewIngestDocumentTool(s.ingestor).WithLogger(s.logger)
	s.mcpServer.AddTool(ToolDefinitions["ingest_feishu_document"], ingestTool.Call)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)

	// Ingestion and proxying are bounded; the MCP stream is not
	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(s.config.RequestTimeout))
		api.Post(ParsePath, s.ParseHandler)
		api.Get(s.config.ProxyPath, s.ProxyHandler)
	})

	if s.config.Images != nil {
		prefix := strings.TrimRight(s.config.ImageURLPrefix, "/")
		r.Handle(prefix+"/*", s.config.Images)
	}

	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		JSONResponse: true,
	}))

	r.Get("/", s.indexHandler)
	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.InfoContext(ctx, "starting HTTP server",
		"port", s.config.Port,
		"endpoints", []string{ParsePath, s.config.ProxyPath, s.config.ImageURLPrefix, "/mcp", "/health/live", "/health/ready"},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.InfoContext(context.Background(), "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// indexHandler returns the server information page
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Feishu Ingest Server\n\n")
	fmt.Fprintf(w, "Endpoints:\n")
	fmt.Fprintf(w, "  POST %-20s - Parse a document link ({\"url\": ...})\n", ParsePath)
	fmt.Fprintf(w, "  GET  %-20s - Authenticated image pass-through (?url=&token=)\n", s.config.ProxyPath)
	fmt.Fprintf(w, "  GET  %-20s - Cached images\n", s.config.ImageURLPrefix+"/*")
	fmt.Fprintf(w, "  POST %-20s - MCP streamable HTTP transport\n", "/mcp")
	fmt.Fprintf(w, "  GET  %-20s - Liveness check\n", "/health/live")
	fmt.Fprintf(w, "  GET  %-20s - Readiness check\n", "/health/ready")
	fmt.Fprintf(w, "\nServer: %s %s\n", ServiceName, Version)
}

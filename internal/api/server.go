package api

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/callrunner/callrunner/internal/history"
	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/ws"
)

// Server is the HTTP trigger for the runner.
type Server struct {
	runner   *runner.Runner
	history  history.Store
	metrics  http.Handler
	hub      *ws.Hub
	logger   *slog.Logger
	port     int
	server   *http.Server
	staticFS fs.FS
	devMode  bool

	// invokeMu keeps invocations strictly sequential per process.
	invokeMu sync.Mutex
}

// Option configures the API server.
type Option func(*Server)

// WithStaticFS sets the filesystem for the status page.
func WithStaticFS(fsys fs.FS) Option {
	return func(s *Server) {
		s.staticFS = fsys
	}
}

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithHub sets the WebSocket hub.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithHistory enables the /api/runs endpoints.
func WithHistory(store history.Store) Option {
	return func(s *Server) {
		s.history = store
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new API server.
func New(r *runner.Runner, logger *slog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		runner: r,
		logger: logger,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}
	handler = requestLogger(s.logger, handler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting trigger server", "port", s.port, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/invoke", s.handleInvoke)
	mux.HandleFunc("GET /api/manifest", s.handleManifest)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	if s.hub != nil {
		mux.HandleFunc("/api/ws", s.hub.HandleWebSocket)
	}

	if s.staticFS != nil {
		mux.Handle("/", s.staticHandler())
	}
}

// staticHandler serves the status page. Unknown paths fall back to index.html.
func (s *Server) staticHandler() http.Handler {
	fileServer := http.FileServer(http.FS(s.staticFS))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "index.html"
		} else {
			path = strings.TrimPrefix(path, "/")
		}

		f, err := s.staticFS.Open(path)
		if err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

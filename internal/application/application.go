package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/releasecheck/internal/api"
	"github.com/eugenenazirov/releasecheck/internal/config"
	"github.com/eugenenazirov/releasecheck/internal/metrics"
	"github.com/eugenenazirov/releasecheck/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	repo    *storage.DirStorage
	metrics *metrics.Recorder
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
// When the repository root cannot be resolved the service still starts and
// only GET /api/report is unavailable.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	recorder := metrics.NewRecorder()
	opts := []api.HandlerOption{
		api.WithMetrics(recorder),
		api.WithForbiddenFlag(cfg.ForbiddenFlag),
		api.WithMaxRequestBytes(cfg.MaxRequestBytes),
		api.WithHandlerLogger(logger),
	}

	var repo *storage.DirStorage
	root, err := cfg.ResolveRepoRoot()
	if err != nil {
		logger.Warn("repository root not found, repository report disabled", zap.Error(err))
	} else {
		repo = storage.NewDirStorage(root)
		opts = append(opts, api.WithRepository(repo))
	}

	handler := api.NewHandler(cfg.Files, opts...)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler, err := BuildRootHandler(apiRouter, recorder.Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		repo:    repo,
		metrics: recorder,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, rootHandler),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and the metrics endpoint at /metrics.
func BuildRootHandler(apiHandler, metricsHandler http.Handler) (http.Handler, error) {
	if apiHandler == nil {
		return nil, errors.New("api handler is required")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		fields := []zap.Field{zap.String("addr", a.server.Addr)}
		if a.repo != nil {
			fields = append(fields, zap.String("repo_root", a.repo.Root()))
		}
		a.logger.Info("server listening", fields...)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

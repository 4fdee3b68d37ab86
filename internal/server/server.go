// Package server provides the HTTP API for ruiji.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/models"
)

// Ranker ranks catalog images against a query image or vector.
type Ranker interface {
	Rank(ctx context.Context, imageID, prompt string) ([]models.SimilarityResult, error)
	RankVector(ctx context.Context, query []float32, prompt, excludeID string) ([]models.SimilarityResult, error)
}

// EmbeddingService resolves image embeddings and embeds query text.
type EmbeddingService interface {
	GetOrGenerate(ctx context.Context, id string) (*models.EmbeddingResponse, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ImageService creates and reads catalog images.
type ImageService interface {
	Generate(ctx context.Context, prompt string) (*models.GenerateResponse, error)
	Upload(ctx context.Context, encoded string) (*models.UploadResponse, error)
	Get(ctx context.Context, id string) (*models.Image, error)
}

// ImageCounter reports the catalog size.
type ImageCounter interface {
	CountImages(ctx context.Context) (int64, error)
}

// EmbeddingCounter reports the embedding store size.
type EmbeddingCounter interface {
	CountEmbeddings(ctx context.Context) (int64, error)
}

// WatchService manages inbox directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Metrics records request and domain metrics and serves them.
type Metrics interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
	ObserveRankingError(err error)
	ObserveEmbedding(source string)
	ObserveImage(origin string)
	Handler() http.Handler
}

// Dependencies are the services the API delegates to. Watch and Metrics are optional.
type Dependencies struct {
	Ranker     Ranker
	Embeddings EmbeddingService
	Images     ImageService
	Catalog    ImageCounter
	Store      EmbeddingCounter
	Watch      WatchService
	Metrics    Metrics
}

// Server is the HTTP server for the ruiji API.
type Server struct {
	deps       Dependencies
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. When configPath is set, inbox
// directory changes made through the API are persisted to it.
func NewServer(deps Dependencies, cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:       deps,
		config:     cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))
	if s.deps.Metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/images/generate", s.handleGenerate)
		r.Get("/images", s.handleGenerate)
		r.Post("/images", s.handleUpload)
		r.Get("/images/{id}", s.handleGetImage)
		r.Get("/embeddings/{id}", s.handleGetEmbedding)
		r.Get("/similarity", s.handleSimilarity)
		r.Get("/similarity/text", s.handleTextSimilarity)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

func (s *Server) requestTimeout() time.Duration {
	if s.config != nil && s.config.Server.RequestTimeout > 0 {
		return s.config.Server.RequestTimeout
	}
	return 60 * time.Second
}

// instrument records one observation per request, labelled by the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	host, port := "localhost", 8080
	if s.config != nil {
		host, port = s.config.Server.Host, s.config.Server.Port
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

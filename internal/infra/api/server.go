// Package api is the HTTP surface: job submission and reads, live job
// streams, API key management and knowledge-base documents.
package api

import (
	"context"
	"net/http"
	"time"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/infra/stream"
	"research-orchestrator/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const (
	requestTimeout = 30 * time.Second
	uploadTimeout  = 5 * time.Minute
	createJobRate  = "create_job"
)

// Limiter is the per-user rate limiter; *redis.RateLimiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Streams attaches live subscribers to jobs; *stream.Manager satisfies it.
type Streams interface {
	Subscribe(ctx context.Context, jobID string, sink stream.Sink, snapshot stream.SnapshotFunc) (*stream.Session, error)
	Unsubscribe(jobID string)
}

type Deps struct {
	Jobs      usecase.JobUseCase
	Users     usecase.UserUseCase
	Documents usecase.DocumentUseCase
	Streams   Streams
	Limiter   Limiter
	Auth      *Authenticator
	Metrics   http.Handler
}

type Server struct {
	jobs      usecase.JobUseCase
	users     usecase.UserUseCase
	docs      usecase.DocumentUseCase
	streams   Streams
	limiter   Limiter
	auth      *Authenticator
	metrics   http.Handler
	cfg       *config.Config
	heartbeat time.Duration
	log       *zerolog.Logger
}

func NewServer(cfg *config.Config, d Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	hb := cfg.Server.HeartbeatInterval
	if hb <= 0 {
		hb = 15 * time.Second
	}
	return &Server{
		jobs:      d.Jobs,
		users:     d.Users,
		docs:      d.Documents,
		streams:   d.Streams,
		limiter:   d.Limiter,
		auth:      d.Auth,
		metrics:   d.Metrics,
		cfg:       cfg,
		heartbeat: hb,
		log:       &l,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsHandler())
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		// Streams stay open past any request deadline.
		r.Get("/job/{id}/stream", s.streamJob)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(requestTimeout))

			r.With(RateLimit(s.limiter, createJobRate, s.cfg.RateLimit.JobsPerWindow, s.cfg.RateLimit.Window, s.log)).
				Post("/job", s.createJob)
			r.Get("/job", s.listJobs)
			r.Get("/jobs", s.listJobs)
			r.Route("/job/{id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Delete("/", s.deleteJob)
				r.Get("/thread", s.getThread)
				r.Post("/message", s.addMessage)
			})

			r.Route("/user/key/{provider}", func(r chi.Router) {
				r.Get("/", s.keyStatus)
				r.Post("/", s.saveKey)
				r.Delete("/", s.deleteKey)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", s.listDocuments)
				r.Get("/job/{jobId}", s.jobDocuments)
				r.Get("/{id}", s.getDocument)
				r.Get("/{id}/chunks", s.documentChunks)
				r.Delete("/{id}", s.deleteDocument)
				r.Post("/{id}/attach/{jobId}", s.attachDocument)
				r.Delete("/{id}/attach/{jobId}", s.detachDocument)
				r.Delete("/{id}/detach/{jobId}", s.detachDocument)
			})
		})

		r.With(Timeout(uploadTimeout)).Post("/upload", s.upload)
	})
	return r
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := s.cfg.Server.AllowedOrigins
	if s.cfg.Runtime.Dev || len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", traceHeader},
		ExposedHeaders:   []string{traceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"devMode":   s.cfg.Runtime.Dev,
	})
}

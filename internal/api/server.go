// Package api is the operator HTTP API. It exposes report and page status
// and forwards direct-invocation payloads to the same router the Lambda
// entry point uses.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"recaps/internal/types"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	defaultListLimit      = 20
	maxListLimit          = 200
)

// ReportReader reads reports.
type ReportReader interface {
	GetByID(ctx context.Context, id int64) (*types.Report, error)
	ListRecent(ctx context.Context, limit int) ([]types.Report, error)
}

// PageReader reads page logs.
type PageReader interface {
	ListByReport(ctx context.Context, reportID int64) ([]types.PageLog, error)
	CountByStatus(ctx context.Context, reportID int64) ([]types.StatusCount, error)
}

// ArtifactCounter summarises artifacts of a report.
type ArtifactCounter interface {
	CountByStatus(ctx context.Context, reportID int64) ([]types.StatusCount, error)
}

// Invoker runs one direct-invocation payload.
type Invoker interface {
	Direct(ctx context.Context, payload []byte) (any, error)
}

// HealthProbe checks one dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// Server holds the API dependencies.
type Server struct {
	Reports   ReportReader
	Pages     PageReader
	Artifacts ArtifactCounter
	Invoker   Invoker
	Probes    []HealthProbe
	AdminKey  types.SecretString
	Logger    *slog.Logger

	// RequestTimeout bounds every request context, including invocations.
	RequestTimeout time.Duration

	router *chi.Mux
}

// NewServer validates dependencies and mounts the routes.
func NewServer(s Server) (*Server, error) {
	if s.Reports == nil || s.Pages == nil || s.Artifacts == nil {
		return nil, errors.New("api: report, page and artifact readers are required")
	}
	if s.Invoker == nil {
		return nil, errors.New("api: invoker is required")
	}
	if s.AdminKey.IsZero() {
		return nil, errors.New("api: admin key must not be empty")
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = defaultRequestTimeout
	}
	srv := &s
	srv.router = chi.NewRouter()
	srv.mountRoutes()
	return srv, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/healthz", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AdminAuth)
		r.Get("/reports", s.HandleListReports)
		r.Get("/reports/{id}", s.HandleGetReport)
		r.Get("/reports/{id}/pages", s.HandleListPages)
		r.Post("/invoke", s.HandleInvoke)
	})
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger to HealthProbe.
type PingProbe struct {
	Label  string
	Target Pinger
}

func (p PingProbe) Name() string                    { return p.Label }
func (p PingProbe) Check(ctx context.Context) error { return p.Target.Ping(ctx) }

package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/heimdex/heimdex-fetch/internal/estimate"
	"github.com/heimdex/heimdex-fetch/internal/jobs"
)

// Dispatcher starts fetch jobs.
type Dispatcher interface {
	StartVideo(sourceID string, resolution int, title string) (string, error)
	StartAudio(sourceID string, kbps int, title string) (string, error)
}

// Estimator answers size queries. It never fails.
type Estimator interface {
	Estimate(ctx context.Context, sourceID string) estimate.Result
}

// JobReader is the read side of the job store.
type JobReader interface {
	Get(id string) (jobs.Job, bool)
	List() map[string]jobs.Job
}

// VersionSource reports the fetch engine version.
type VersionSource interface {
	Get(ctx context.Context) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Bind         string
	Port         int
	DownloadsDir string
	CORSOrigins  []string
	Jobs         JobReader
	Dispatcher   Dispatcher
	Estimator    Estimator
	Version      VersionSource
	Logger       *slog.Logger
	StartTime    time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// size estimates and file downloads can run for minutes
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

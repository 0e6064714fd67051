package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/playback"
	"github.com/framecut/framecut-backend/internal/probe"
	"github.com/framecut/framecut-backend/internal/timeline"
	"github.com/framecut/framecut-backend/internal/upload"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host           string
	Port           int
	Timeline       *timeline.Store
	Exports        *exports.Service
	Dispatcher     *exports.Dispatcher
	Uploads        upload.Store
	Prober         probe.Prober // nil disables upload enrichment
	Playback       *playback.Server
	Presets        []string
	AllowedOrigins []string
	CORSMaxAge     time.Duration
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Uploads and ranged downloads can be long; no body timeouts.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

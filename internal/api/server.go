package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/fmuoria/resume-parser/internal/agent"
	"github.com/fmuoria/resume-parser/internal/config"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// FetcherFactory opens a Gmail attachment fetcher on demand
type FetcherFactory func(ctx context.Context) (agent.AttachmentFetcher, error)

// Server handles HTTP requests
type Server struct {
	agent  *agent.ResumeAgent
	cfg    config.ServerConfig
	gmail  FetcherFactory
	logger *logrus.Logger
	echo   *echo.Echo
}

// NewServer creates a new API server. gmail may be nil, in which case the
// Gmail ingest endpoint reports that it is unavailable.
func NewServer(a *agent.ResumeAgent, cfg config.ServerConfig, gmail FetcherFactory, logger *logrus.Logger) *Server {
	s := &Server{
		agent:  a,
		cfg:    cfg,
		gmail:  gmail,
		logger: logger,
	}
	s.echo = s.newEcho()
	return s
}

// Echo returns the configured echo instance
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on addr until the server is shut down
func (s *Server) Start(addr string) error {
	s.logger.WithField("addr", addr).Info("Starting HTTP server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewErrorHandler(s.logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(logrus.Fields{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency,
				"remote_ip": v.RemoteIP,
			}).Info("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	origins := s.cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	if s.cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(s.cfg.BodyLimit))
	}

	s.registerRoutes(e)
	return e
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)

	e.POST("/upload", s.handleUpload)
	e.POST("/upload/", s.handleUpload)

	apiGroup := e.Group("/api")
	apiGroup.GET("/report", s.handleReport)
	apiGroup.GET("/results/:name", s.handleGetResult)

	e.POST("/ingest/gmail", s.handleGmailIngest)

	if s.cfg.StaticDir != "" {
		e.Static("/", s.cfg.StaticDir)
	}
}

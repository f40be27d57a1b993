// Package httpserver exposes inference over HTTP with echo: health, metrics,
// the active pipeline and single-form prediction.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/formscan/internal/classifier"
	"github.com/ironsheep/formscan/internal/datastore"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/metrics"
	"github.com/ironsheep/formscan/internal/pipeline"
)

// MaxUploadSize bounds request bodies.
const MaxUploadSize = "32M"

const shutdownTimeout = 10 * time.Second

// SessionLister lists indexed sessions. *datastore.Store implements it.
type SessionLister interface {
	ListSessions(ctx context.Context, limit int) ([]datastore.SessionRecord, error)
}

// Server is the HTTP service.
type Server struct {
	echo       *echo.Echo
	extractor  *pipeline.Extractor
	classifier classifier.Classifier
	sessions   SessionLister
	metrics    *metrics.Metrics
	log        logger.Logger
}

// Options are the optional parts of a Server.
type Options struct {
	Metrics  *metrics.Metrics
	Sessions SessionLister
}

// New builds the server and registers its routes.
func New(ex *pipeline.Extractor, cls classifier.Classifier, opts Options, log logger.Logger) *Server {
	s := &Server{
		echo:       echo.New(),
		extractor:  ex,
		classifier: cls,
		sessions:   opts.Sessions,
		metrics:    opts.Metrics,
		log:        log.Module("http"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(MaxUploadSize))
	s.echo.Use(s.requestLogger)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api/v1")
	api.GET("/pipeline", s.handlePipeline)
	api.POST("/forms/predict", s.handlePredict)
	if s.sessions != nil {
		api.GET("/sessions", s.handleSessions)
	}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.log.Info("http server listening", logger.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("http server shutting down")
		return s.echo.Shutdown(shutdownCtx)
	}
}

// requestLogger tags each request with an id and logs it on completion.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := req.Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.New().String()[:8]
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Debug("request",
			logger.String("request_id", id),
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", c.Response().Status),
			logger.Duration("elapsed", time.Since(start)))
		return nil
	}
}

// Package httpapi serves the record store over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/internal/durability"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// Service is the store surface the handlers need. *store.Store implements it.
type Service interface {
	Create(text string, ext types.Extensions) (types.Record, error)
	Get(id string) (types.Record, error)
	Update(id string, updates types.Updates) error
	Delete(id string) error
	Reorder(id string, newPosition int) error
	ClearCompleted() (int, error)
	Stats() types.Stats
	Export() []types.Record
	Import(records []types.Record, mode types.ImportMode) (int, error)
	Backup() (string, error)
	Backups() ([]durability.BackupInfo, error)
	RestoreFromBackup(path string) error
	Query(ctx context.Context, q types.Query) ([]types.Record, error)
}

// Server is an echo instance with the taskpad routes registered.
type Server struct {
	echo   *echo.Echo
	logger *log.Logger
}

// New builds a Server over svc. Request metrics go to a registry owned by
// the server; /metrics exposes it together with the default registry.
func New(svc Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	reg := prometheus.NewRegistry()
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "taskpad",
		Subsystem:  "http",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(requestLogger(logger))

	Register(e, svc, logger)
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	return &Server{echo: e, logger: logger}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("listen", addr).Info("http server started")
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Debug("request")
			return nil
		},
	})
}

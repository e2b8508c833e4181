// Package api hosts the local HTTP server. Route handlers live in v2.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hospitalops/livemon/internal/conf"
	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
)

const (
	component       = "webserver"
	defaultListen   = "127.0.0.1:8090"
	shutdownTimeout = 5 * time.Second
)

// Server wraps the echo instance serving the local API.
type Server struct {
	Echo   *echo.Echo
	listen string
	log    logger.Logger
}

// New builds an echo instance with recovery, request ids and request
// logging. Routes are registered by the caller on Server.Echo.
func New(settings conf.WebServerSettings, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	log = log.Module(component)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	}))

	listen := settings.Listen
	if listen == "" {
		listen = defaultListen
	}
	return &Server{Echo: e, listen: listen, log: log}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("api server listening", logger.String("listen", s.listen))

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Newf("api server failed: %w", err).
				Component(component).
				Category(errors.CategoryNetwork).
				Context("listen", s.listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return errors.Newf("api server shutdown: %w", err).
			Component(component).
			Category(errors.CategoryNetwork).
			Build()
	}
	<-errCh
	s.log.Info("api server stopped")
	return nil
}

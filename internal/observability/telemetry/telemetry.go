// Package telemetry forwards operational errors to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hospitalops/livemon/internal/errors"
)

const flushTimeout = 2 * time.Second

// Config selects the Sentry project.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Init configures the global Sentry client and installs an error reporter
// on the errors package. It returns a flush function for shutdown. An empty
// DSN disables reporting and returns a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, errors.Newf("sentry init: %w", err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	errors.SetReporter(Reporter(sentry.CurrentHub()))
	return func() {
		errors.SetReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

// Reporter returns an errors.Reporter that captures reportable errors on hub.
func Reporter(hub *sentry.Hub) errors.Reporter {
	return func(err *errors.EnhancedError) {
		if hub == nil || !ShouldReport(err.GetCategory()) {
			return
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", err.GetComponent())
			scope.SetTag("category", string(err.GetCategory()))
			if ctx := err.GetContext(); len(ctx) > 0 {
				scope.SetContext("error", sentry.Context(ctx))
			}
			hub.CaptureException(err)
		})
	}
}

// ShouldReport reports whether errors of category c are operational
// failures worth forwarding. State and validation errors are caller
// mistakes and stay local.
func ShouldReport(c errors.Category) bool {
	switch c {
	case errors.CategoryNetwork, errors.CategoryStorage, errors.CategoryProtocol,
		errors.CategoryConfiguration, errors.CategoryMutation, errors.CategoryQuery:
		return true
	}
	return false
}

// Package errors provides categorized, context-carrying errors built with a
// fluent builder:
//
//	errors.Newf("alert %s not found", id).
//		Component("alerting").
//		Category(errors.CategoryNotFound).
//		Context("alert_id", id).
//		Build()
//
// It re-exports the standard Is/As/Join helpers so callers need one import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
)

// Category classifies an error for propagation and reporting decisions.
type Category string

const (
	CategoryGeneric       Category = "generic"
	CategoryValidation    Category = "validation"
	CategoryNotFound      Category = "not-found"
	CategoryState         Category = "state"
	CategoryNetwork       Category = "network"
	CategoryQuery         Category = "query"
	CategoryMutation      Category = "mutation"
	CategoryProtocol      Category = "protocol"
	CategoryStorage       Category = "storage"
	CategoryConfiguration Category = "configuration"
)

// EnhancedError wraps an underlying error with component, category and
// free-form context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if e.component == "" {
		return e.Err.Error()
	}
	return e.component + ": " + e.Err.Error()
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// GetComponent returns the component that raised the error.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() Category { return e.category }

// GetContext returns a copy of the attached context.
func (e *EnhancedError) GetContext() map[string]any { return maps.Clone(e.context) }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err *EnhancedError
}

// New starts a builder around an existing error.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = stderrors.New("unknown error")
	}
	return &ErrorBuilder{err: &EnhancedError{Err: err, category: CategoryGeneric}}
}

// Newf starts a builder around a formatted message. %w verbs wrap as usual.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.err.component = name
	return b
}

func (b *ErrorBuilder) Category(c Category) *ErrorBuilder {
	b.err.category = c
	return b
}

func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalizes the error and hands it to the registered reporter, if any.
func (b *ErrorBuilder) Build() *EnhancedError {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(b.err)
	}
	return b.err
}

// Reporter receives every built error. Used to forward errors to telemetry.
type Reporter func(err *EnhancedError)

var (
	reporter   Reporter
	reporterMu sync.RWMutex
)

// SetReporter installs (or clears, with nil) the package-level reporter.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

// CategoryOf returns the category of the first EnhancedError in err's chain,
// or CategoryGeneric.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}

func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }
func Unwrap(err error) error        { return stderrors.Unwrap(err) }

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

package monitoring

import "github.com/hospitalops/livemon/internal/errors"

// Sentinel errors. Callers wrap them with the errors builder and match them
// with errors.Is.
var (
	// ErrConnection means the push channel failed to open or closed unexpectedly.
	ErrConnection = errors.NewStd("push connection failed")
	// ErrQuery means a remote read failed.
	ErrQuery = errors.NewStd("query failed")
	// ErrMutation means a remote mutation failed.
	ErrMutation = errors.NewStd("mutation failed")
	// ErrInvalidTransition means a lifecycle command is not allowed in the current state.
	ErrInvalidTransition = errors.NewStd("invalid transition")
	// ErrMessageParse means an inbound push message was malformed.
	ErrMessageParse = errors.NewStd("malformed push message")
	// ErrNotFound means the entity is not known.
	ErrNotFound = errors.NewStd("not found")
	// ErrInvalidInput means the caller supplied an invalid argument.
	ErrInvalidInput = errors.NewStd("invalid input")
)

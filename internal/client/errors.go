package client

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotAssigned is returned when an analysis command is sent
	// before set_model.
	ErrModelNotAssigned = errors.New("server reported: model not assigned")

	// ErrCommandInvalid is returned when the server rejected a command.
	ErrCommandInvalid = errors.New("server reported: command invalid")

	// ErrClosed is returned once the server has exited or the client has
	// been closed.
	ErrClosed = errors.New("server session is closed")
)

// ServerFailure is a flamapy failure reported by the server. The server ends
// its session after reporting one, so the client is unusable afterwards.
type ServerFailure struct {
	// Model is the model path named in the failure header.
	Model string
	// Detail is the text following the header, possibly several lines.
	Detail string
}

func (e *ServerFailure) Error() string {
	return fmt.Sprintf("flamapy failed for model %s: %s", e.Model, e.Detail)
}

// ParseError is returned when a response line cannot be interpreted as the
// expected value.
type ParseError struct {
	// Want names the expected kind of value, e.g. "integer".
	Want string
	// Line is the raw response line.
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse %s from server output %q", e.Want, e.Line)
}

// IsServerFailure reports whether err is or wraps a *ServerFailure.
func IsServerFailure(err error) bool {
	var sf *ServerFailure
	return errors.As(err, &sf)
}

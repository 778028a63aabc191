package remote

import (
	"errors"
	"fmt"
)

// TransportError means no response was received: DNS failure, refused
// connection, reset, or a canceled context.
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FetchError is a non-2xx response. Message is the server's "message" field
// when the body carried one.
type FetchError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

// ValidationError is a create or update payload rejected by the server.
type ValidationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s rejected by server (status %d)", e.Op, e.StatusCode)
}

// IsTransport reports whether err stems from a request that never got a response.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.StatusCode
	}
	return 0
}

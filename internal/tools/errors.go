package tools

import (
	"errors"
	"fmt"

	"bitbucket-mcp/internal/bitbucket"
)

// Kind classifies every failure a tool call can surface.
type Kind int

const (
	InvalidParams Kind = iota + 1
	MethodNotFound
	UpstreamError
	InternalError
)

// JSON-RPC 2.0 error codes.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

func (k Kind) String() string {
	switch k {
	case InvalidParams:
		return "InvalidParams"
	case MethodNotFound:
		return "MethodNotFound"
	case UpstreamError:
		return "UpstreamError"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Code maps the kind onto the JSON-RPC error code reported to callers.
// Upstream failures travel as internal errors on the wire; the message
// carries the distinction.
func (k Kind) Code() int {
	switch k {
	case InvalidParams:
		return CodeInvalidParams
	case MethodNotFound:
		return CodeMethodNotFound
	default:
		return CodeInternal
	}
}

// Error is the only error type Dispatch returns.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalidParams(format string, args ...any) *Error {
	return &Error{Kind: InvalidParams, Message: fmt.Sprintf(format, args...)}
}

// classify turns a failure raised while executing a command into an *Error.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	var apiErr *bitbucket.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &Error{Kind: UpstreamError, Message: "Bitbucket API error: " + msg}
	}
	return &Error{Kind: InternalError, Message: err.Error()}
}

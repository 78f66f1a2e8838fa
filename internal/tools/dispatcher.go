// Package tools implements the Bitbucket tool catalogue: discovery, argument
// validation, project resolution and dispatch of each call to a single
// upstream request.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Dispatcher routes tool calls. It holds no per-call state and is safe for
// concurrent use.
type Dispatcher struct {
	projects ProjectResolver
	upstream Upstream
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators. A nil logger
// discards diagnostics.
func NewDispatcher(projects ProjectResolver, upstream Upstream, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{projects: projects, upstream: upstream, logger: logger}
}

// ListTools returns the tool descriptors in their fixed order.
func (d *Dispatcher) ListTools() []Descriptor { return ListTools() }

// Dispatch validates arguments, resolves the project, performs the upstream
// call and returns its text result. Every returned error is an *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, arguments map[string]any) (text string, err error) {
	validate, ok := validators[name]
	if !ok {
		return "", &Error{Kind: MethodNotFound, Message: "Unknown tool: " + name}
	}

	cmd, err := validate(args(arguments))
	if err != nil {
		return "", classify(err)
	}
	if err := cmd.resolve(d.projects); err != nil {
		return "", classify(err)
	}

	traceID := uuid.New().String()
	logger := d.logger.With("tool", name, "trace_id", traceID)
	logger.Info("tool call", "params", cmd)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool call panicked", "panic", r)
			text, err = "", &Error{Kind: InternalError, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	start := time.Now()
	text, err = cmd.execute(ctx, d.upstream)
	if err != nil {
		te := classify(err)
		logger.Warn("tool call failed", "kind", te.Kind.String(), "err", err, "duration", time.Since(start))
		return "", te
	}
	logger.Debug("tool call done", "duration", time.Since(start))
	return text, nil
}

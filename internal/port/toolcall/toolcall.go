// Package toolcall defines the port the orchestrator uses to reach the tool
// protocol server.
package toolcall

import (
	"context"
	"encoding/json"

	"github.com/hexaflow/taskpilot/internal/port/llm"
)

// Result is the outcome of one tool invocation. Output always holds
// display-ready text; IsError marks tool-level failures that the model should
// see and react to.
type Result struct {
	Output  string
	IsError bool
}

// Error is a structured protocol-level failure with a stable code from the
// JSON-RPC family, so callers can branch without string matching.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Invoker executes named tools and enumerates the registry.
type Invoker interface {
	// Registry returns the tool list, possibly from a short-lived cache.
	Registry(ctx context.Context) ([]llm.ToolDef, error)

	// Invoke executes one tool. Tool-level failures are reported inside the
	// Result; the error return is reserved for protocol or availability
	// failures (including domain.ErrNotReady before activation finishes).
	Invoke(ctx context.Context, name string, args json.RawMessage) (*Result, error)
}

// Package llm defines the port for the language model. The model is an
// opaque collaborator: history and tools in, text and/or tool requests out.
package llm

import (
	"context"
	"encoding/json"

	"github.com/hexaflow/taskpilot/internal/domain/chat"
)

// ToolDef describes one invocable tool to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Request is a single completion call.
type Request struct {
	System    string
	Messages  []chat.Message
	Tools     []ToolDef // empty disables tool use for this call
	MaxTokens int
}

// Response is the model's reply: text, tool requests, or both.
type Response struct {
	Text     string
	Requests []chat.ToolRequest
}

// Provider is the opaque model call. Implementations must be safe for
// concurrent use and must honor context cancellation.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

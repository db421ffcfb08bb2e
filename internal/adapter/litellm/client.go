// Package litellm implements the llm.Provider port against an
// OpenAI-compatible chat completions endpoint (LiteLLM proxy or any
// compatible server).
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hexaflow/taskpilot/internal/domain/chat"
	"github.com/hexaflow/taskpilot/internal/port/llm"
)

// Client calls the chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a chat completions client for the given model.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// --- wire types (OpenAI chat completions) ---

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string      `json:"type"`
	Function wireToolDef `json:"function"`
}

type wireToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completion call and maps the reply back onto the
// domain types. Tool requests keep their provider-assigned ids for
// correlation.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	wireReq := completionRequest{
		Model:     c.model,
		Messages:  toWireMessages(req.System, req.Messages),
		MaxTokens: req.MaxTokens,
	}
	for _, def := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, wireTool{
			Type: "function",
			Function: wireToolDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("completion API error %d: %s", resp.StatusCode, string(data))
	}

	var wireResp completionResponse
	if err := json.Unmarshal(data, &wireResp); err != nil {
		return nil, fmt.Errorf("unmarshal completion response: %w", err)
	}
	if wireResp.Error != nil {
		return nil, fmt.Errorf("completion API error: %s", wireResp.Error.Message)
	}
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices")
	}

	msg := wireResp.Choices[0].Message
	out := &llm.Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.Requests = append(out.Requests, chat.ToolRequest{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// toWireMessages flattens domain messages into the OpenAI shape: assistant
// tool requests become tool_calls, and each tool result block becomes its own
// tool-role message correlated by tool_call_id.
func toWireMessages(system string, messages []chat.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, wireMessage{Role: "system", Content: system})
	}

	for i := range messages {
		m := &messages[i]
		switch m.Role {
		case chat.RoleAssistant:
			wm := wireMessage{Role: "assistant", Content: m.Text()}
			for _, req := range m.ToolRequests() {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:   req.ID,
					Type: "function",
					Function: wireFunction{
						Name:      req.Name,
						Arguments: string(req.Input),
					},
				})
			}
			out = append(out, wm)

		case chat.RoleUser:
			if !m.HasToolResults() {
				out = append(out, wireMessage{Role: "user", Content: m.Text()})
				continue
			}
			for j := range m.Blocks {
				b := &m.Blocks[j]
				if b.Type != chat.BlockToolResult {
					continue
				}
				content := b.Output
				if b.IsError {
					content = "ERROR: " + content
				}
				out = append(out, wireMessage{
					Role:       "tool",
					ToolCallID: b.ID,
					Content:    content,
				})
			}
		}
	}
	return out
}

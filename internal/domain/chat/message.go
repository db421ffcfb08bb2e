// Package chat defines conversation messages and the run event stream.
package chat

import (
	"encoding/json"
	"fmt"
)

// Role is the top-level author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the typed content blocks inside a message.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockToolRequest BlockType = "tool_request"
	BlockToolResult  BlockType = "tool_result"
)

// Block is one typed content element of a message.
//
// Text blocks use Text. Tool request blocks use ID, Name and Input. Tool
// result blocks use ID (the originating request id), Output and IsError.
type Block struct {
	Type    BlockType       `json:"type"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  string          `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Message is a single conversation turn with ordered content blocks.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// TextMessage builds a message with a single text block.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{{Type: BlockText, Text: text}}}
}

// Text concatenates the text blocks of the message.
func (m *Message) Text() string {
	var out string
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockText {
			out += m.Blocks[i].Text
		}
	}
	return out
}

// ToolRequests returns the tool request blocks of the message.
func (m *Message) ToolRequests() []ToolRequest {
	var reqs []ToolRequest
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockToolRequest {
			reqs = append(reqs, ToolRequest{
				ID:    m.Blocks[i].ID,
				Name:  m.Blocks[i].Name,
				Input: m.Blocks[i].Input,
			})
		}
	}
	return reqs
}

// HasToolResults reports whether the message carries any tool result block.
func (m *Message) HasToolResults() bool {
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockToolResult {
			return true
		}
	}
	return false
}

// ToolRequest is a model-issued request to execute a named tool.
type ToolRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one tool request, correlated by RequestID.
type ToolResult struct {
	RequestID string `json:"request_id"`
	Output    string `json:"output"`
	IsError   bool   `json:"is_error"`
}

// ResultMessage wraps tool results in the user-role carrier message that
// follows the assistant turn which requested them.
func ResultMessage(results []ToolResult) Message {
	msg := Message{Role: RoleUser}
	for _, r := range results {
		msg.Blocks = append(msg.Blocks, Block{
			Type:    BlockToolResult,
			ID:      r.RequestID,
			Output:  r.Output,
			IsError: r.IsError,
		})
	}
	return msg
}

// ValidateAlternation checks that top-level roles alternate strictly between
// user and assistant. A user message carrying tool results is the carrier for
// the preceding assistant turn's tool requests: it must directly follow an
// assistant message that issued at least one tool request, and its result ids
// must match that turn's request ids exactly.
func ValidateAlternation(history []Message) error {
	for i := range history {
		m := &history[i]
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if i > 0 && history[i-1].Role == m.Role {
			return fmt.Errorf("message %d: consecutive %s messages break alternation", i, m.Role)
		}
		if m.Role == RoleUser && m.HasToolResults() {
			if i == 0 {
				return fmt.Errorf("message %d: tool results without a preceding assistant turn", i)
			}
			reqs := history[i-1].ToolRequests()
			if len(reqs) == 0 {
				return fmt.Errorf("message %d: tool results but previous assistant turn requested no tools", i)
			}
			if err := matchResultIDs(m, reqs); err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
		}
	}
	return nil
}

// matchResultIDs checks that the carrier holds exactly one result per request
// id of the preceding assistant turn.
func matchResultIDs(carrier *Message, reqs []ToolRequest) error {
	answered := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		answered[r.ID] = false
	}
	for i := range carrier.Blocks {
		b := &carrier.Blocks[i]
		if b.Type != BlockToolResult {
			continue
		}
		done, ok := answered[b.ID]
		if !ok {
			return fmt.Errorf("tool result %q matches no request in the previous turn", b.ID)
		}
		if done {
			return fmt.Errorf("duplicate tool result %q", b.ID)
		}
		answered[b.ID] = true
	}
	for _, r := range reqs {
		if !answered[r.ID] {
			return fmt.Errorf("no tool result for request %q", r.ID)
		}
	}
	return nil
}

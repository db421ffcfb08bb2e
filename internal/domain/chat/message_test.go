package chat

import (
	"encoding/json"
	"testing"
)

func assistantWithTool(text, id, name string) Message {
	msg := Message{Role: RoleAssistant}
	if text != "" {
		msg.Blocks = append(msg.Blocks, Block{Type: BlockText, Text: text})
	}
	msg.Blocks = append(msg.Blocks, Block{
		Type:  BlockToolRequest,
		ID:    id,
		Name:  name,
		Input: json.RawMessage(`{}`),
	})
	return msg
}

func TestMessageText(t *testing.T) {
	msg := Message{Role: RoleAssistant, Blocks: []Block{
		{Type: BlockText, Text: "Hello"},
		{Type: BlockToolRequest, ID: "t1", Name: "task_list"},
		{Type: BlockText, Text: ", world"},
	}}
	if got := msg.Text(); got != "Hello, world" {
		t.Errorf("Text() = %q, want %q", got, "Hello, world")
	}
}

func TestMessageToolRequests(t *testing.T) {
	msg := assistantWithTool("checking", "t1", "task_list")
	reqs := msg.ToolRequests()
	if len(reqs) != 1 {
		t.Fatalf("got %d tool requests, want 1", len(reqs))
	}
	if reqs[0].ID != "t1" || reqs[0].Name != "task_list" {
		t.Errorf("unexpected request %+v", reqs[0])
	}
}

func TestResultMessage(t *testing.T) {
	msg := ResultMessage([]ToolResult{
		{RequestID: "t1", Output: "ok"},
		{RequestID: "t2", Output: "boom", IsError: true},
	})
	if msg.Role != RoleUser {
		t.Errorf("role = %q, want user", msg.Role)
	}
	if !msg.HasToolResults() {
		t.Error("HasToolResults() = false, want true")
	}
	if len(msg.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(msg.Blocks))
	}
	if msg.Blocks[1].ID != "t2" || !msg.Blocks[1].IsError {
		t.Errorf("unexpected block %+v", msg.Blocks[1])
	}
}

func TestValidateAlternation(t *testing.T) {
	user := TextMessage(RoleUser, "hi")
	assistant := TextMessage(RoleAssistant, "hello")
	toolTurn := assistantWithTool("", "t1", "task_list")
	carrier := ResultMessage([]ToolResult{{RequestID: "t1", Output: "ok"}})

	twoToolTurn := assistantWithTool("", "t1", "task_list")
	twoToolTurn.Blocks = append(twoToolTurn.Blocks, Block{
		Type: BlockToolRequest, ID: "t2", Name: "task_create", Input: json.RawMessage(`{}`),
	})
	fullCarrier := ResultMessage([]ToolResult{
		{RequestID: "t1", Output: "ok"},
		{RequestID: "t2", Output: "ok"},
	})
	strayCarrier := ResultMessage([]ToolResult{{RequestID: "t9", Output: "ok"}})
	dupCarrier := ResultMessage([]ToolResult{
		{RequestID: "t1", Output: "ok"},
		{RequestID: "t1", Output: "again"},
	})

	tests := []struct {
		name    string
		history []Message
		wantErr bool
	}{
		{name: "empty history", history: nil},
		{name: "single user turn", history: []Message{user}},
		{name: "alternating turns", history: []Message{user, assistant, user, assistant}},
		{name: "tool carrier after tool request", history: []Message{user, toolTurn, carrier, assistant}},
		{name: "consecutive user turns", history: []Message{user, user}, wantErr: true},
		{name: "consecutive assistant turns", history: []Message{user, assistant, assistant}, wantErr: true},
		{name: "unknown role", history: []Message{{Role: "system"}}, wantErr: true},
		{name: "carrier first", history: []Message{carrier}, wantErr: true},
		{name: "carrier after plain assistant", history: []Message{user, assistant, carrier}, wantErr: true},
		{name: "carrier answers all sibling requests", history: []Message{user, twoToolTurn, fullCarrier, assistant}},
		{name: "carrier result matches no request id", history: []Message{user, toolTurn, strayCarrier}, wantErr: true},
		{name: "carrier missing a sibling result", history: []Message{user, twoToolTurn, carrier}, wantErr: true},
		{name: "carrier repeats a result id", history: []Message{user, toolTurn, dupCarrier}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAlternation(tt.history)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAlternation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventTerminal(t *testing.T) {
	terminal := []EventType{EventComplete, EventError, EventCancelled}
	for _, typ := range terminal {
		if !(Event{Type: typ}).Terminal() {
			t.Errorf("Event{%s}.Terminal() = false, want true", typ)
		}
	}
	progress := []EventType{EventStart, EventIteration, EventToolsDispatch, EventToolCompleted, EventFinalizing}
	for _, typ := range progress {
		if (Event{Type: typ}).Terminal() {
			t.Errorf("Event{%s}.Terminal() = true, want false", typ)
		}
	}
}

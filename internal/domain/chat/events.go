package chat

// EventType tags the events emitted while a run is in flight.
type EventType string

const (
	EventStart         EventType = "start"
	EventIteration     EventType = "iteration"
	EventToolsDispatch EventType = "tools_dispatched"
	EventToolCompleted EventType = "tool_completed"
	EventFinalizing    EventType = "finalizing"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventCancelled     EventType = "cancelled"
)

// Event is one element of a run's ordered, finite event stream. Exactly one
// of complete, error or cancelled terminates the stream; the channel is
// closed right after the terminal event.
type Event struct {
	Type EventType `json:"type"`

	// iteration
	Iteration     int `json:"iteration,omitempty"`
	MaxIterations int `json:"max_iterations,omitempty"`

	// tools_dispatched / tool_completed
	ToolNames []string `json:"tool_names,omitempty"`
	ToolName  string   `json:"tool_name,omitempty"`

	// complete
	Result *RunResult `json:"result,omitempty"`

	// error / cancelled
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventComplete, EventError, EventCancelled:
		return true
	}
	return false
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID         string    `json:"run_id"`
	Text          string    `json:"text"`
	ExecutedTools []string  `json:"executed_tools,omitempty"`
	HistoryDelta  []Message `json:"history_delta"`
	DurationMs    int64     `json:"duration_ms"`
}

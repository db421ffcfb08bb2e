// Package service contains the conversation orchestrator and the tool
// invocation gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	tpotel "github.com/hexaflow/taskpilot/internal/adapter/otel"
	"github.com/hexaflow/taskpilot/internal/domain"
	"github.com/hexaflow/taskpilot/internal/domain/chat"
	"github.com/hexaflow/taskpilot/internal/port/llm"
	"github.com/hexaflow/taskpilot/internal/port/toolcall"
)

const (
	defaultMaxIterations = 3
	hardMaxIterations    = 5
	defaultRunTimeout    = 20 * time.Second
	finalizeGrace        = 10 * time.Second
	defaultMaxTokens     = 1024

	// eventBuffer absorbs bursts of progress events from a turn's sibling
	// tool calls before the consumer drains them.
	eventBuffer = 64
)

const defaultSystemPrompt = `You are a task assistant. You manage the user's local task list through the provided tools. When you reply to the user, refer to tasks by title, never by internal id. Keep replies short and concrete.`

// OrchestratorConfig bounds a single run.
type OrchestratorConfig struct {
	MaxIterations int           // model call rounds per run; default 3, capped at 5
	RunTimeout    time.Duration // wall-clock budget per run; default 20s
	MaxTokens     int
	SystemPrompt  string
}

// Orchestrator drives the agentic loop: call the model, execute requested
// tools through the gateway, feed results back, repeat under an iteration cap
// and a deadline.
type Orchestrator struct {
	provider llm.Provider
	tools    toolcall.Invoker
	cfg      OrchestratorConfig
	metrics  *tpotel.Metrics
}

// NewOrchestrator creates an Orchestrator. metrics may be nil.
func NewOrchestrator(provider llm.Provider, tools toolcall.Invoker, cfg OrchestratorConfig, metrics *tpotel.Metrics) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxIterations > hardMaxIterations {
		cfg.MaxIterations = hardMaxIterations
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Orchestrator{provider: provider, tools: tools, cfg: cfg, metrics: metrics}
}

// Run processes one user turn to completion and returns the result. It is
// RunStream with the progress events discarded.
func (o *Orchestrator) Run(ctx context.Context, userText string, history []chat.Message) (*chat.RunResult, error) {
	var terminal chat.Event
	for ev := range o.RunStream(ctx, userText, history) {
		if ev.Terminal() {
			terminal = ev
		}
	}
	switch terminal.Type {
	case chat.EventComplete:
		return terminal.Result, nil
	case chat.EventCancelled:
		return nil, context.Canceled
	default:
		return nil, errors.New(terminal.Message)
	}
}

// RunStream processes one user turn and returns its ordered, finite event
// stream. Exactly one terminal event (complete, error or cancelled) is
// emitted; the channel is closed right after it, and the caller must drain
// the stream until it closes. Cancelling ctx stops further model and tool
// calls promptly.
func (o *Orchestrator) RunStream(ctx context.Context, userText string, history []chat.Message) <-chan chat.Event {
	events := make(chan chat.Event, eventBuffer)
	go func() {
		defer close(events)
		emit := func(ev chat.Event) {
			if ev.Terminal() {
				// Progress events may be shed under backpressure; the terminal
				// event never is. The consumer drains the stream to close, so
				// this send always completes.
				events <- ev
				return
			}
			select {
			case events <- ev:
			default:
				slog.Debug("run progress event dropped", "type", ev.Type)
			}
		}
		terminal := o.run(ctx, userText, history, emit)
		emit(terminal)
	}()
	return events
}

// runState is the ephemeral per-turn context. It is created at run start and
// discarded when the turn ends; nothing in it is persisted.
type runState struct {
	id       string
	started  time.Time
	delta    []chat.Message
	seen     map[string]struct{} // dedupe keys already executed
	executed map[string]struct{} // distinct tool names actually executed
}

func (o *Orchestrator) run(ctx context.Context, userText string, history []chat.Message, emit func(chat.Event)) (terminal chat.Event) {
	st := &runState{
		id:       uuid.NewString(),
		started:  time.Now(),
		seen:     make(map[string]struct{}),
		executed: make(map[string]struct{}),
	}

	// Unexpected faults become a single generic terminal error instead of
	// propagating out of the goroutine.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("run panicked", "run_id", st.id, "panic", r)
			o.countRun(context.Background(), "failed")
			terminal = chat.Event{Type: chat.EventError, Message: "Something went wrong while processing your request."}
		}
	}()

	if userText == "" {
		o.countRun(ctx, "failed")
		return chat.Event{Type: chat.EventError, Message: "Please enter a message."}
	}
	if err := chat.ValidateAlternation(history); err != nil {
		slog.Warn("invalid history", "run_id", st.id, "error", err)
		o.countRun(ctx, "failed")
		return chat.Event{Type: chat.EventError, Message: "The conversation history is malformed; please start a new conversation."}
	}

	o.countRun(ctx, "started")
	emit(chat.Event{Type: chat.EventStart})

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	registry, err := o.tools.Registry(runCtx)
	if err != nil {
		return o.failStart(ctx, st, err)
	}

	st.delta = append(st.delta, chat.TextMessage(chat.RoleUser, userText))

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		emit(chat.Event{Type: chat.EventIteration, Iteration: iter, MaxIterations: o.cfg.MaxIterations})

		resp, err := o.provider.Complete(runCtx, llm.Request{
			System:    o.cfg.SystemPrompt,
			Messages:  append(append([]chat.Message{}, history...), st.delta...),
			Tools:     registry,
			MaxTokens: o.cfg.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(st)
			}
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				// Budget exhaustion is not an error; force a grounded answer
				// from whatever tool results already exist.
				return o.finalize(ctx, st, history, emit)
			}
			slog.Error("model call failed", "run_id", st.id, "iteration", iter, "error", err)
			o.countRun(ctx, "failed")
			return chat.Event{Type: chat.EventError, Message: "The model is currently unavailable; please try again."}
		}

		assistant := assistantMessage(resp)
		st.delta = append(st.delta, assistant)

		if len(resp.Requests) == 0 {
			return o.complete(ctx, st, resp.Text)
		}

		results, err := o.executeTools(runCtx, st, resp.Requests, emit)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(st)
			}
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return o.finalize(ctx, st, history, emit)
			}
			if errors.Is(err, domain.ErrNotReady) {
				o.countRun(ctx, "failed")
				return chat.Event{Type: chat.EventError, Message: "The task service is still starting up; please try again in a moment."}
			}
			slog.Error("tool round trip failed", "run_id", st.id, "error", err)
			o.countRun(ctx, "failed")
			return chat.Event{Type: chat.EventError, Message: "A tool request could not be delivered; please try again."}
		}

		st.delta = append(st.delta, chat.ResultMessage(results))
	}

	return o.finalize(ctx, st, history, emit)
}

// executeTools runs the sibling tool calls of one model turn concurrently and
// re-attaches results to their originating request ids, so completion order
// never matters. Repeated (name, canonical arguments) pairs within the run
// are not re-executed; they yield a synthetic "duplicate skipped" error
// result. Tool-level failures become is_error results and do not abort the
// run; only protocol or availability failures are returned as errors.
func (o *Orchestrator) executeTools(ctx context.Context, st *runState, requests []chat.ToolRequest, emit func(chat.Event)) ([]chat.ToolResult, error) {
	names := make([]string, 0, len(requests))
	for i := range requests {
		names = append(names, requests[i].Name)
	}
	emit(chat.Event{Type: chat.EventToolsDispatch, ToolNames: names})

	results := make([]chat.ToolResult, len(requests))
	invoked := make([]bool, len(requests))
	g, gctx := errgroup.WithContext(ctx)

	for i := range requests {
		req := requests[i]

		key, keyErr := dedupeKey(req.Name, req.Input)
		if keyErr != nil {
			results[i] = chat.ToolResult{
				RequestID: req.ID,
				Output:    keyErr.Error(),
				IsError:   true,
			}
			continue
		}
		if _, dup := st.seen[key]; dup {
			results[i] = chat.ToolResult{
				RequestID: req.ID,
				Output:    fmt.Sprintf("%v: %s was already called with identical arguments in this run; nothing new happened", domain.ErrDuplicateCall, req.Name),
				IsError:   true,
			}
			continue
		}
		st.seen[key] = struct{}{}

		idx := i
		g.Go(func() error {
			res, err := o.tools.Invoke(gctx, req.Name, req.Input)
			if err != nil {
				var te *toolcall.Error
				if errors.As(err, &te) {
					// Unknown tool or bad params: captured as a result for the
					// model to react to.
					results[idx] = chat.ToolResult{RequestID: req.ID, Output: te.Message, IsError: true}
					emit(chat.Event{Type: chat.EventToolCompleted, ToolName: req.Name})
					return nil
				}
				return err
			}
			results[idx] = chat.ToolResult{RequestID: req.ID, Output: res.Output, IsError: res.IsError}
			invoked[idx] = true
			o.countToolCall(gctx, req.Name)
			emit(chat.Event{Type: chat.EventToolCompleted, ToolName: req.Name})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Only tools the gateway actually ran count as executed; requests the
	// gateway rejected at the protocol level do not.
	for i := range requests {
		if invoked[i] {
			st.executed[requests[i].Name] = struct{}{}
		}
	}
	return results, nil
}

// finalize issues one more model call with tools disabled to force a
// concluding answer after the iteration cap or deadline stopped the loop.
func (o *Orchestrator) finalize(ctx context.Context, st *runState, history []chat.Message, emit func(chat.Event)) chat.Event {
	emit(chat.Event{Type: chat.EventFinalizing})

	// The run budget may already be spent; finalization gets a short grace
	// window that still honors caller cancellation.
	fctx, cancel := context.WithTimeout(ctx, finalizeGrace)
	defer cancel()

	messages := append(append([]chat.Message{}, history...), st.delta...)
	if last := len(messages) - 1; last >= 0 && messages[last].Role == chat.RoleAssistant {
		messages = append(messages, chat.TextMessage(chat.RoleUser,
			"Wrap up now. Summarize what was done based on the tool results above."))
	}

	resp, err := o.provider.Complete(fctx, llm.Request{
		System:    o.cfg.SystemPrompt,
		Messages:  messages,
		MaxTokens: o.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(st)
		}
		slog.Error("forced finalization failed", "run_id", st.id, "error", err)
		o.countRun(ctx, "failed")
		return chat.Event{Type: chat.EventError, Message: "The reply could not be completed in time; please try again."}
	}

	st.delta = append(st.delta, chat.TextMessage(chat.RoleAssistant, resp.Text))
	return o.complete(ctx, st, resp.Text)
}

func (o *Orchestrator) complete(ctx context.Context, st *runState, text string) chat.Event {
	executed := make([]string, 0, len(st.executed))
	for name := range st.executed {
		executed = append(executed, name)
	}
	sort.Strings(executed)

	duration := time.Since(st.started)
	o.countRun(ctx, "completed")
	if o.metrics != nil {
		o.metrics.RunDuration.Record(ctx, duration.Seconds())
	}
	slog.Info("run complete",
		"run_id", st.id,
		"executed_tools", executed,
		"duration_ms", duration.Milliseconds(),
	)

	return chat.Event{
		Type: chat.EventComplete,
		Result: &chat.RunResult{
			RunID:         st.id,
			Text:          text,
			ExecutedTools: executed,
			HistoryDelta:  st.delta,
			DurationMs:    duration.Milliseconds(),
		},
	}
}

func (o *Orchestrator) cancelled(st *runState) chat.Event {
	slog.Info("run cancelled", "run_id", st.id)
	o.countRun(context.Background(), "cancelled")
	return chat.Event{Type: chat.EventCancelled, Message: "The request was cancelled."}
}

// failStart maps a registry fetch failure at run start to its terminal event.
func (o *Orchestrator) failStart(ctx context.Context, st *runState, err error) chat.Event {
	if ctx.Err() != nil {
		return o.cancelled(st)
	}
	o.countRun(ctx, "failed")
	if errors.Is(err, domain.ErrNotReady) {
		return chat.Event{Type: chat.EventError, Message: "The task service is still starting up; please try again in a moment."}
	}
	slog.Error("registry fetch failed", "run_id", st.id, "error", err)
	return chat.Event{Type: chat.EventError, Message: "The task tools are unavailable; please try again."}
}

func (o *Orchestrator) countRun(ctx context.Context, status string) {
	if o.metrics == nil {
		return
	}
	switch status {
	case "started":
		o.metrics.RunsStarted.Add(ctx, 1)
	case "completed":
		o.metrics.RunsCompleted.Add(ctx, 1)
	case "cancelled":
		o.metrics.RunsCancelled.Add(ctx, 1)
	default:
		o.metrics.RunsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func (o *Orchestrator) countToolCall(ctx context.Context, name string) {
	if o.metrics == nil {
		return
	}
	o.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", name)))
}

// assistantMessage converts a model response into the assistant history turn.
func assistantMessage(resp *llm.Response) chat.Message {
	msg := chat.Message{Role: chat.RoleAssistant}
	if resp.Text != "" {
		msg.Blocks = append(msg.Blocks, chat.Block{Type: chat.BlockText, Text: resp.Text})
	}
	for _, req := range resp.Requests {
		msg.Blocks = append(msg.Blocks, chat.Block{
			Type:  chat.BlockToolRequest,
			ID:    req.ID,
			Name:  req.Name,
			Input: req.Input,
		})
	}
	return msg
}

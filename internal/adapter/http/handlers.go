package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hexaflow/taskpilot/internal/adapter/toolserver"
	"github.com/hexaflow/taskpilot/internal/adapter/ws"
	"github.com/hexaflow/taskpilot/internal/domain/chat"
	"github.com/hexaflow/taskpilot/internal/domain/task"
	"github.com/hexaflow/taskpilot/internal/service"
)

const maxChatBody = 1 << 20 // 1 MiB

// Handlers holds the dependencies for all HTTP endpoints.
type Handlers struct {
	Orchestrator *service.Orchestrator
	ToolServer   *toolserver.Server
	Hub          *ws.Hub
}

type chatRequest struct {
	Message string         `json:"message"`
	History []chat.Message `json:"history,omitempty"`
}

// HandleChat runs a conversation turn and streams run events to the client as
// newline-delimited JSON. Each event is flushed as soon as it is produced so
// the client sees progress in real time.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for ev := range h.Orchestrator.RunStream(r.Context(), req.Message, req.History) {
		if h.Hub != nil {
			h.Hub.BroadcastRunEvent(r.Context(), ev)
		}
		if err := enc.Encode(ev); err != nil {
			slog.Warn("chat stream write failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// HandleListTasks returns stored tasks, optionally filtered by status and
// priority query parameters. The store is activated lazily on first use, so
// the first request may pay the activation cost.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	var f task.Filter
	if s := r.URL.Query().Get("status"); s != "" {
		if !task.ValidStatus(task.Status(s)) {
			writeError(w, http.StatusBadRequest, "invalid status: "+s)
			return
		}
		f.Status = task.Status(s)
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		if !task.ValidPriority(task.Priority(p)) {
			writeError(w, http.StatusBadRequest, "invalid priority: "+p)
			return
		}
		f.Priority = task.Priority(p)
	}

	if err := h.ToolServer.Activate(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "task store is not available")
		return
	}

	tasks, err := h.ToolServer.Store().ListTasks(r.Context(), f)
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// HandleHealth reports process liveness and tool server readiness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"tool_ready": h.ToolServer.Ready(),
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hexaflow/taskpilot/internal/domain"
	"github.com/hexaflow/taskpilot/internal/domain/task"
)

// registerTools registers the task tools on the protocol server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.createTaskTool(),
		s.listTasksTool(),
		s.updateTaskTool(),
		s.deleteTaskTool(),
	)
}

func statusValues() []string {
	vals := make([]string, 0, 4)
	for _, st := range task.Statuses() {
		vals = append(vals, string(st))
	}
	return vals
}

func priorityValues() []string {
	vals := make([]string, 0, 3)
	for _, p := range task.Priorities() {
		vals = append(vals, string(p))
	}
	return vals
}

func (s *Server) createTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("task_create",
		mcplib.WithDescription("Create a new task on the user's task list"),
		mcplib.WithString("title",
			mcplib.Required(),
			mcplib.Description("Short task title"),
		),
		mcplib.WithString("description",
			mcplib.Description("Optional longer description"),
		),
		mcplib.WithString("priority",
			mcplib.Description("Task priority; defaults to medium"),
			mcplib.Enum(priorityValues()...),
		),
		mcplib.WithString("status",
			mcplib.Description("Initial status; defaults to pending"),
			mcplib.Enum(statusValues()...),
		),
		mcplib.WithString("due_date",
			mcplib.Description("Optional due date as an RFC 3339 timestamp"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCreateTask,
	}
}

func (s *Server) listTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("task_list",
		mcplib.WithDescription("List tasks, optionally filtered by status and/or priority"),
		mcplib.WithString("status",
			mcplib.Description("Only return tasks with this status"),
			mcplib.Enum(statusValues()...),
		),
		mcplib.WithString("priority",
			mcplib.Description("Only return tasks with this priority"),
			mcplib.Enum(priorityValues()...),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListTasks,
	}
}

func (s *Server) updateTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("task_update",
		mcplib.WithDescription("Update fields of an existing task; only supplied fields change"),
		mcplib.WithString("id",
			mcplib.Required(),
			mcplib.Description("The task id to update"),
		),
		mcplib.WithString("title",
			mcplib.Description("New title"),
		),
		mcplib.WithString("description",
			mcplib.Description("New description"),
		),
		mcplib.WithString("priority",
			mcplib.Description("New priority"),
			mcplib.Enum(priorityValues()...),
		),
		mcplib.WithString("status",
			mcplib.Description("New status; setting completed stamps the completion time"),
			mcplib.Enum(statusValues()...),
		),
		mcplib.WithString("due_date",
			mcplib.Description("New due date as an RFC 3339 timestamp"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleUpdateTask,
	}
}

func (s *Server) deleteTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("task_delete",
		mcplib.WithDescription("Delete a task from the user's task list"),
		mcplib.WithString("id",
			mcplib.Required(),
			mcplib.Description("The task id to delete"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDeleteTask,
	}
}

func (s *Server) handleCreateTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if !s.ready.Load() {
		return mcplib.NewToolResultError(domain.ErrNotReady.Error()), nil
	}
	args := req.GetArguments()

	createReq := task.CreateRequest{
		Title:       stringArg(args, "title"),
		Description: stringArg(args, "description"),
		Priority:    task.Priority(stringArg(args, "priority")),
		Status:      task.Status(stringArg(args, "status")),
	}
	due, err := timeArg(args, "due_date")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	createReq.DueDate = due

	t, err := s.store.CreateTask(ctx, createReq)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return taskResult(renderCreated(t), t), nil
}

func (s *Server) handleListTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if !s.ready.Load() {
		return mcplib.NewToolResultError(domain.ErrNotReady.Error()), nil
	}
	args := req.GetArguments()

	filter := task.Filter{
		Status:   task.Status(stringArg(args, "status")),
		Priority: task.Priority(stringArg(args, "priority")),
	}
	if filter.Status != "" && !task.ValidStatus(filter.Status) {
		return mcplib.NewToolResultError(fmt.Sprintf("invalid status %q", filter.Status)), nil
	}
	if filter.Priority != "" && !task.ValidPriority(filter.Priority) {
		return mcplib.NewToolResultError(fmt.Sprintf("invalid priority %q", filter.Priority)), nil
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return taskResult(renderList(tasks, filter), tasks), nil
}

func (s *Server) handleUpdateTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if !s.ready.Load() {
		return mcplib.NewToolResultError(domain.ErrNotReady.Error()), nil
	}
	args := req.GetArguments()

	id := stringArg(args, "id")
	if id == "" {
		return mcplib.NewToolResultError("id is required"), nil
	}

	before, err := s.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return mcplib.NewToolResultError(fmt.Sprintf("no task found with id %s", id)), nil
		}
		return mcplib.NewToolResultError(err.Error()), nil
	}

	var patch task.UpdatePatch
	if v, ok := args["title"].(string); ok {
		patch.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	if v, ok := args["priority"].(string); ok {
		p := task.Priority(v)
		patch.Priority = &p
	}
	if v, ok := args["status"].(string); ok {
		st := task.Status(v)
		patch.Status = &st
	}
	due, err := timeArg(args, "due_date")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	patch.DueDate = due

	if patch.Empty() {
		return mcplib.NewToolResultError("no fields to update were supplied"), nil
	}

	after, err := s.store.UpdateTask(ctx, id, patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return mcplib.NewToolResultError(fmt.Sprintf("no task found with id %s", id)), nil
		}
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return taskResult(renderUpdated(before, after), after), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if !s.ready.Load() {
		return mcplib.NewToolResultError(domain.ErrNotReady.Error()), nil
	}
	args := req.GetArguments()

	id := stringArg(args, "id")
	if id == "" {
		return mcplib.NewToolResultError("id is required"), nil
	}

	t, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return mcplib.NewToolResultError(fmt.Sprintf("no task found with id %s", id)), nil
		}
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return taskResult(renderDeleted(t), t), nil
}

// taskResult packs a human-readable rendering plus the machine payload into a
// tool result. The rendering comes first so it is the preferred display text.
func taskResult(human string, payload any) *mcplib.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("marshal payload: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: human},
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func timeArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp: %v", key, err)
	}
	return &t, nil
}

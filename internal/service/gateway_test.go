package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/hexaflow/taskpilot/internal/adapter/toolserver"
	"github.com/hexaflow/taskpilot/internal/domain"
	"github.com/hexaflow/taskpilot/internal/port/toolcall"
)

func newTestGateway(t *testing.T) *ToolGateway {
	t.Helper()
	srv := toolserver.New(toolserver.Config{
		Name:    "test",
		Version: "0.1.0",
		DBPath:  filepath.Join(t.TempDir(), "tasks.db"),
	})
	g, err := NewToolGateway(srv, time.Minute)
	if err != nil {
		t.Fatalf("NewToolGateway: %v", err)
	}
	t.Cleanup(func() {
		_ = g.Close()
		_ = srv.Close()
	})
	return g
}

func TestGatewayRegistry(t *testing.T) {
	g := newTestGateway(t)

	defs, err := g.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if len(defs) != 4 {
		t.Fatalf("got %d tools, want 4", len(defs))
	}

	byName := make(map[string]bool)
	for _, d := range defs {
		byName[d.Name] = true
		if d.Description == "" {
			t.Errorf("tool %s has no description", d.Name)
		}
		var schema map[string]any
		if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
			t.Errorf("tool %s schema is not JSON: %v", d.Name, err)
		}
	}
	for _, name := range []string{"task_create", "task_list", "task_update", "task_delete"} {
		if !byName[name] {
			t.Errorf("tool %s missing from registry", name)
		}
	}

	name, version := g.ServerIdentity()
	if name != "test" || version != "0.1.0" {
		t.Errorf("identity = %s/%s, want test/0.1.0", name, version)
	}
}

func TestGatewayInvokeRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	res, err := g.Invoke(ctx, "task_create", json.RawMessage(`{"title":"Write report","priority":"high"}`))
	if err != nil {
		t.Fatalf("Invoke task_create: %v", err)
	}
	if res.IsError {
		t.Fatalf("task_create returned error: %s", res.Output)
	}
	if !strings.Contains(res.Output, `"Write report"`) {
		t.Errorf("output = %q, want title mentioned", res.Output)
	}

	res, err = g.Invoke(ctx, "task_list", nil)
	if err != nil {
		t.Fatalf("Invoke task_list: %v", err)
	}
	if res.IsError {
		t.Fatalf("task_list returned error: %s", res.Output)
	}
	if !strings.Contains(res.Output, "Write report") {
		t.Errorf("output = %q, want created task listed", res.Output)
	}
}

func TestGatewayInvokeToolError(t *testing.T) {
	g := newTestGateway(t)

	// Missing title is a tool-level failure: it comes back inside the result.
	res, err := g.Invoke(context.Background(), "task_create", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError {
		t.Error("expected is_error result for invalid arguments")
	}
}

func TestGatewayInvokeUnknownTool(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.Invoke(context.Background(), "task_explode", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var te *toolcall.Error
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *toolcall.Error", err)
	}
	if te.Code != mcpprotocol.METHOD_NOT_FOUND {
		t.Errorf("code = %d, want METHOD_NOT_FOUND", te.Code)
	}
}

func TestGatewayInvokeBadArguments(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.Invoke(context.Background(), "task_list", json.RawMessage(`[1,2]`))
	if err == nil {
		t.Fatal("expected error for non-object arguments")
	}
	var te *toolcall.Error
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *toolcall.Error", err)
	}
	if te.Code != mcpprotocol.INVALID_PARAMS {
		t.Errorf("code = %d, want INVALID_PARAMS", te.Code)
	}
}

func TestGatewayNotReady(t *testing.T) {
	// An unreachable store path makes activation fail; the gateway surfaces
	// that as ErrNotReady and leaves the server retryable.
	srv := toolserver.New(toolserver.Config{
		Name:    "test",
		Version: "0.1.0",
		DBPath:  filepath.Join(t.TempDir(), "missing", "nested", "tasks.db"),
	})
	g, err := NewToolGateway(srv, time.Minute)
	if err != nil {
		t.Fatalf("NewToolGateway: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	_, err = g.Registry(context.Background())
	if !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("error = %v, want ErrNotReady", err)
	}
	if srv.Ready() {
		t.Error("server must stay dormant after failed activation")
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/hexaflow/taskpilot/internal/adapter/toolserver"
	"github.com/hexaflow/taskpilot/internal/domain"
	"github.com/hexaflow/taskpilot/internal/port/llm"
	"github.com/hexaflow/taskpilot/internal/port/toolcall"
)

const registryCacheKey = "tool_registry"

// ToolGateway is the client-side facade in front of the embedded tool server.
// It performs the initialize handshake once, caches the tool registry for a
// short TTL, and converts protocol failures into structured errors.
type ToolGateway struct {
	server *toolserver.Server
	cache  *ristretto.Cache[string, []llm.ToolDef]
	ttl    time.Duration

	mu            sync.Mutex
	client        *mcpclient.Client
	serverName    string
	serverVersion string
}

// NewToolGateway creates a gateway over the given embedded server. ttl bounds
// how long an enumerated tool registry is reused without refetching.
func NewToolGateway(server *toolserver.Server, ttl time.Duration) (*ToolGateway, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []llm.ToolDef]{
		NumCounters: 64,
		MaxCost:     16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("registry cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ToolGateway{server: server, cache: cache, ttl: ttl}, nil
}

// ensureClient activates the server if needed and performs the initialize
// handshake exactly once per gateway lifetime.
func (g *ToolGateway) ensureClient(ctx context.Context) (*mcpclient.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	if err := g.server.Activate(ctx); err != nil {
		// Activation failures are retryable: the server stays dormant and the
		// next call attempts activation again.
		return nil, fmt.Errorf("%w: %v", domain.ErrNotReady, err)
	}

	client, err := mcpclient.NewInProcessClient(g.server.MCPServer())
	if err != nil {
		return nil, fmt.Errorf("create in-process client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start in-process client: %w", err)
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "taskpilot",
		Version: "1.0.0",
	}
	initResult, err := client.Initialize(ctx, initReq)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}

	g.client = client
	g.serverName = initResult.ServerInfo.Name
	g.serverVersion = initResult.ServerInfo.Version
	slog.Info("tool server handshake complete",
		"server", g.serverName,
		"version", g.serverVersion,
	)
	return g.client, nil
}

// Registry returns the tool registry, reusing a cached copy within the TTL.
func (g *ToolGateway) Registry(ctx context.Context) ([]llm.ToolDef, error) {
	if defs, ok := g.cache.Get(registryCacheKey); ok {
		return defs, nil
	}

	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	toolsResult, err := client.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		return nil, &toolcall.Error{
			Code:    mcpprotocol.INTERNAL_ERROR,
			Message: fmt.Sprintf("tools/list failed: %v", err),
		}
	}

	defs := make([]llm.ToolDef, 0, len(toolsResult.Tools))
	for i := range toolsResult.Tools {
		t := &toolsResult.Tools[i]
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema for %s: %w", t.Name, err)
		}
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	g.cache.SetWithTTL(registryCacheKey, defs, 1, g.ttl)
	return defs, nil
}

// Invoke executes one tool call against the embedded server. Tool-level
// failures come back inside the Result; protocol failures are returned as a
// structured *toolcall.Error.
func (g *ToolGateway) Invoke(ctx context.Context, name string, args json.RawMessage) (*toolcall.Result, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, &toolcall.Error{
				Code:    mcpprotocol.INVALID_PARAMS,
				Message: fmt.Sprintf("tool %s: arguments are not a JSON object: %v", name, err),
			}
		}
	}

	callReq := mcpprotocol.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = arguments

	result, err := client.CallTool(ctx, callReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !g.knownTool(ctx, name) {
			return nil, &toolcall.Error{
				Code:    mcpprotocol.METHOD_NOT_FOUND,
				Message: fmt.Sprintf("tool %s not found", name),
			}
		}
		return nil, &toolcall.Error{
			Code:    mcpprotocol.INTERNAL_ERROR,
			Message: fmt.Sprintf("tool %s: %v", name, err),
		}
	}

	return &toolcall.Result{
		Output:  flattenContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// ServerIdentity returns the name and version reported during the handshake,
// or empty strings before the first successful call.
func (g *ToolGateway) ServerIdentity() (name, version string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.serverName, g.serverVersion
}

// Close releases the client session and the registry cache.
func (g *ToolGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Close()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	if err != nil {
		return fmt.Errorf("close tool client: %w", err)
	}
	return nil
}

// knownTool checks the registry for the given name, tolerating cache misses.
func (g *ToolGateway) knownTool(ctx context.Context, name string) bool {
	defs, err := g.Registry(ctx)
	if err != nil {
		return true // cannot tell; assume known so the original error surfaces
	}
	for i := range defs {
		if defs[i].Name == name {
			return true
		}
	}
	return false
}

// flattenContent joins the text contents of a tool result for display and for
// feeding back to the model.
func flattenContent(content []mcpprotocol.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcpprotocol.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

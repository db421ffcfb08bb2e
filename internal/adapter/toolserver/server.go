// Package toolserver implements the embedded tool protocol server. It answers
// the MCP method set (initialize, tools/list, tools/call) fully in-process and
// dispatches tool invocations into the local sqlite task store.
package toolserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"

	"github.com/hexaflow/taskpilot/internal/adapter/sqlite"
)

// Config holds the identity the server reports during the initialize
// handshake and the location of its persistent store.
type Config struct {
	Name    string
	Version string
	DBPath  string
}

// Server is the process-wide embedded tool server. It is dormant until
// Activate opens the store; concurrent first callers converge on a single
// activation.
type Server struct {
	cfg       Config
	mcpServer *mcpserver.MCPServer

	activation singleflight.Group
	ready      atomic.Bool
	db         *sql.DB
	store      *sqlite.Store
}

// New creates a dormant Server with the task tools registered. The store is
// not opened until Activate is called.
func New(cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "taskpilot"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	s := &Server{cfg: cfg}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithInstructions("Tools for managing the user's local task list."),
	)
	s.registerTools()
	return s
}

// Activate opens the persistent store and applies migrations. It is safe to
// call from any number of goroutines; only one activation ever runs, and all
// callers observe its outcome. A failed activation is retried on the next call.
func (s *Server) Activate(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}

	_, err, _ := s.activation.Do("activate", func() (any, error) {
		if s.ready.Load() {
			return nil, nil
		}

		db, err := sqlite.Open(ctx, s.cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("activate tool server: %w", err)
		}
		if err := sqlite.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("activate tool server: %w", err)
		}

		s.db = db
		s.store = sqlite.NewStore(db)
		s.ready.Store(true)
		slog.Info("tool server activated", "db_path", s.cfg.DBPath)
		return nil, nil
	})
	return err
}

// Ready reports whether activation has completed.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// MCPServer exposes the underlying protocol server for in-process clients.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Store returns the task store, or nil before activation.
func (s *Server) Store() *sqlite.Store {
	if !s.ready.Load() {
		return nil
	}
	return s.store
}

// Close releases the store handle. The server becomes dormant again.
func (s *Server) Close() error {
	if !s.ready.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close tool server: %w", err)
	}
	slog.Info("tool server closed")
	return nil
}

package toolserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPerServerTimeout = 15 * time.Second
	DefaultTotalTimeout     = 60 * time.Second

	// maxConcurrentBinds bounds how many server processes are spawned at once.
	maxConcurrentBinds = 8
)

// BindOptions configures one bind pass.
type BindOptions struct {
	PerServerTimeout time.Duration
	TotalTimeout     time.Duration
	Logger           zerolog.Logger
}

// BindResult is the outcome of binding a descriptor set.
type BindResult struct {
	Handles         []Handle
	Teardown        func() error
	FailedServerIDs []string
}

// Binder negotiates connections to a set of tool servers.
type Binder interface {
	Bind(ctx context.Context, descriptors []Descriptor, logID string, opts BindOptions) (*BindResult, error)
}

// MCPBinder binds stdio MCP servers.
type MCPBinder struct {
	connect connectFunc
}

// NewBinder creates a binder that spawns real MCP server processes.
func NewBinder() *MCPBinder {
	return &MCPBinder{connect: connectMCP}
}

// newBinderWithConnect is used by tests to substitute fake connections.
func newBinderWithConnect(connect connectFunc) *MCPBinder {
	return &MCPBinder{connect: connect}
}

// Bind connects every descriptor concurrently. Servers that fail to bind or
// time out are collected in FailedServerIDs; the rest contribute their tools
// to Handles. The returned Teardown closes every connection that bound,
// attempting all of them and surfacing the first error.
func (b *MCPBinder) Bind(ctx context.Context, descriptors []Descriptor, logID string, opts BindOptions) (*BindResult, error) {
	if opts.PerServerTimeout <= 0 {
		opts.PerServerTimeout = DefaultPerServerTimeout
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = DefaultTotalTimeout
	}
	logger := opts.Logger.With().Str("session_log", logID).Logger()

	bindCtx, cancel := context.WithTimeout(ctx, opts.TotalTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		conns   []serverConn
		handles []Handle
		failed  []string
	)

	g, gctx := errgroup.WithContext(bindCtx)
	g.SetLimit(maxConcurrentBinds)

	for _, desc := range descriptors {
		g.Go(func() error {
			serverCtx, serverCancel := context.WithTimeout(gctx, opts.PerServerTimeout)
			defer serverCancel()

			conn, err := b.connect(serverCtx, desc)
			if err != nil {
				logger.Warn().
					Str("server_id", desc.ID).
					Err(err).
					Msg("Tool server failed to bind")
				mu.Lock()
				failed = append(failed, desc.ID)
				mu.Unlock()
				return nil
			}

			serverHandles, err := conn.Handles(serverCtx)
			if err != nil {
				logger.Warn().
					Str("server_id", desc.ID).
					Err(err).
					Msg("Tool server bound but tool listing failed")
				conn.Close()
				mu.Lock()
				failed = append(failed, desc.ID)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			conns = append(conns, conn)
			handles = append(handles, serverHandles...)
			mu.Unlock()

			logger.Debug().
				Str("server_id", desc.ID).
				Int("tools", len(serverHandles)).
				Msg("Tool server bound")
			return nil
		})
	}

	// Bind workers never return errors; failures are per-server.
	g.Wait()

	sort.Strings(failed)

	teardown := func() error {
		var firstErr error
		for _, conn := range conns {
			if err := conn.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("tool server teardown: %w", err)
			}
		}
		return firstErr
	}

	return &BindResult{
		Handles:         handles,
		Teardown:        teardown,
		FailedServerIDs: failed,
	}, nil
}

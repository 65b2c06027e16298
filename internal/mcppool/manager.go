package mcppool

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/resilience"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSeparator joins server and tool names in qualified tool names.
const DefaultSeparator = "__"

// ErrNoSessions is returned when no requested server could be opened.
var ErrNoSessions = errors.New("no tool server sessions could be opened")

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ConnectError reports a server that could not be opened.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Registry resolves a server name to launch parameters.
type Registry interface {
	ConnectionParams(name string) (config.ServerConfig, error)
}

// Options configures a Manager.
type Options struct {
	Separator string
	Retrier   *resilience.Retrier
	Metrics   telemetry.Metrics
}

// Manager opens tool-server sessions.
type Manager struct {
	registry  Registry
	logger    *zap.Logger
	separator string
	retrier   *resilience.Retrier
	metrics   telemetry.Metrics
	connect   connectFunc
}

func NewManager(registry Registry, logger *zap.Logger, opts Options) *Manager {
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	return &Manager{
		registry:  registry,
		logger:    telemetry.OrNop(logger).Named("mcppool"),
		separator: opts.Separator,
		retrier:   opts.Retrier,
		metrics:   telemetry.MetricsOrNop(opts.Metrics),
		connect:   connect,
	}
}

type session struct {
	server string
	conn   *connection
	tools  []mcp.Tool
}

// OpenSingle opens one server. Its tools keep their native names.
func (m *Manager) OpenSingle(ctx context.Context, server string) (*Toolset, error) {
	sess, err := m.openSession(ctx, server)
	if err != nil {
		return nil, err
	}

	ts := newToolset(m.logger, m.metrics)
	ts.stack.Push(server, sess.conn.close)
	ts.addSession(sess, false, m.separator)
	return ts, nil
}

// OpenMulti opens every named server concurrently. Servers that fail are
// logged and skipped; if none open, the error wraps ErrNoSessions. Tool
// names are qualified as server + separator + tool.
func (m *Manager) OpenMulti(ctx context.Context, servers []string) (*Toolset, error) {
	servers = dedupe(servers)
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no servers requested", ErrNoSessions)
	}

	sessions := make([]*session, len(servers))
	failures := make([]error, len(servers))

	// Failures are recorded per slot; the group never cancels siblings.
	var g errgroup.Group
	for i, server := range servers {
		g.Go(func() error {
			sess, err := m.openSession(ctx, server)
			if err != nil {
				failures[i] = err
				return nil
			}
			sessions[i] = sess
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	ts := newToolset(m.logger, m.metrics)
	var errs []error
	for i, server := range servers {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			m.logger.Warn("skipping tool server",
				telemetry.EventField(telemetry.EventSessionFailure),
				telemetry.ServerField(server),
				zap.Error(failures[i]),
			)
			continue
		}
		ts.stack.Push(server, sessions[i].conn.close)
		ts.addSession(sessions[i], true, m.separator)
	}

	if len(ts.servers) == 0 {
		ts.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %w", ErrNoSessions, errors.Join(errs...))
	}
	ts.failed = errs
	return ts, nil
}

func (m *Manager) openSession(ctx context.Context, server string) (*session, error) {
	sess, err := m.tryOpenSession(ctx, server)
	m.metrics.ObserveSessionOpen(server, err)
	if err != nil {
		return nil, &ConnectError{Server: server, Err: err}
	}
	m.logger.Debug("tool server session open",
		telemetry.EventField(telemetry.EventSessionOpen),
		telemetry.ServerField(server),
		zap.Int("tools", len(sess.tools)),
	)
	return sess, nil
}

func (m *Manager) tryOpenSession(ctx context.Context, server string) (*session, error) {
	if m.registry == nil {
		return nil, errors.New("no server registry configured")
	}
	scfg, err := m.registry.ConnectionParams(server)
	if err != nil {
		return nil, err
	}

	return resilience.Do(ctx, m.retrier, "open "+server, func(ctx context.Context) (*session, error) {
		conn, err := m.connect(ctx, server, scfg)
		if err != nil {
			return nil, err
		}
		tools, err := conn.listTools(ctx)
		if err != nil {
			if conn.close != nil {
				conn.close() //nolint:errcheck
			}
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		return &session{server: server, conn: conn, tools: tools}, nil
	})
}

// QualifiedName returns the backend-safe name of a tool in multi-server
// mode.
func QualifiedName(server, tool, separator string) string {
	return unsafeNameChars.ReplaceAllString(server+separator+tool, "_")
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

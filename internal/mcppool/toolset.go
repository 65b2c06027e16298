package mcppool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ErrUnknownTool is returned by Call for names absent from the routing table.
var ErrUnknownTool = errors.New("unknown tool")

// ToolDescriptor is a tool as presented to the model.
type ToolDescriptor struct {
	QualifiedName string
	Server        string
	NativeName    string
	Description   string
	InputSchema   map[string]any
}

type route struct {
	server string
	native string
	conn   *connection
	schema map[string]any
}

// Toolset is the flattened tool catalog of one or more open sessions plus
// the routing table back to them. Close tears every session down.
type Toolset struct {
	logger  *zap.Logger
	metrics telemetry.Metrics

	tools    []ToolDescriptor
	routes   map[string]route
	prefixes []string
	servers []string
	failed  []error
	stack   *Stack
}

func newToolset(logger *zap.Logger, metrics telemetry.Metrics) *Toolset {
	return &Toolset{
		logger:  logger,
		metrics: telemetry.MetricsOrNop(metrics),
		routes:  make(map[string]route),
		stack:   &Stack{},
	}
}

func (t *Toolset) addSession(sess *session, qualify bool, separator string) {
	t.servers = append(t.servers, sess.server)
	if qualify {
		t.prefixes = append(t.prefixes, QualifiedName(sess.server, "", separator))
	}
	for _, tool := range sess.tools {
		name := tool.Name
		desc := tool.Description
		if qualify {
			name = QualifiedName(sess.server, tool.Name, separator)
			desc = strings.TrimSpace(fmt.Sprintf("[%s] %s", sess.server, tool.Description))
		}
		if _, dup := t.routes[name]; dup {
			t.logger.Warn("dropping tool with colliding name",
				telemetry.ServerField(sess.server),
				telemetry.ToolField(tool.Name),
				zap.String("qualified", name),
			)
			continue
		}

		schema, err := inputSchema(tool)
		if err != nil {
			t.logger.Warn("tool has unreadable input schema",
				telemetry.ServerField(sess.server),
				telemetry.ToolField(tool.Name),
				zap.Error(err),
			)
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		t.routes[name] = route{server: sess.server, native: tool.Name, conn: sess.conn, schema: schema}
		t.tools = append(t.tools, ToolDescriptor{
			QualifiedName: name,
			Server:        sess.server,
			NativeName:    tool.Name,
			Description:   desc,
			InputSchema:   schema,
		})
	}
}

// Tools returns the flattened catalog in server then listing order.
func (t *Toolset) Tools() []ToolDescriptor {
	return append([]ToolDescriptor(nil), t.tools...)
}

// FunctionTools returns the catalog in function-calling form.
func (t *Toolset) FunctionTools() []backend.FunctionTool {
	out := make([]backend.FunctionTool, 0, len(t.tools))
	for _, tool := range t.tools {
		out = append(out, backend.FunctionTool{
			Name:        tool.QualifiedName,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	return out
}

// Servers returns the servers with open sessions.
func (t *Toolset) Servers() []string {
	return append([]string(nil), t.servers...)
}

// Failures returns the connect errors of servers that were skipped.
func (t *Toolset) Failures() []error {
	return append([]error(nil), t.failed...)
}

// Resolve maps a presented tool name to its owning server and native name.
func (t *Toolset) Resolve(name string) (server, native string, ok bool) {
	r, ok := t.lookup(name)
	if !ok {
		return "", "", false
	}
	return r.server, r.native, true
}

// Call coerces args against the tool's input schema and invokes it on the
// owning session.
func (t *Toolset) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	r, ok := t.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	compiled, err := coerceArgs(args, r.schema)
	if err != nil {
		t.metrics.ObserveToolCall(r.server, err)
		return nil, err
	}

	start := time.Now()
	result, err := r.conn.callTool(ctx, r.native, compiled)
	t.metrics.ObserveToolCall(r.server, err)
	t.logger.Debug("tool call",
		telemetry.EventField(telemetry.EventToolCall),
		telemetry.ServerField(r.server),
		telemetry.ToolField(r.native),
		telemetry.DurationField(time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", r.native, r.server, err)
	}
	return result, nil
}

// Close closes every session exactly once.
func (t *Toolset) Close() error {
	err := t.stack.Close()
	t.logger.Debug("tool server sessions closed",
		telemetry.EventField(telemetry.EventSessionClose),
		zap.Strings("servers", t.servers),
		zap.Error(err),
	)
	return err
}

func (t *Toolset) lookup(name string) (route, bool) {
	if r, ok := t.routes[name]; ok {
		return r, true
	}
	prefix, native := t.splitQualified(name)
	for _, alias := range toolAliases(native) {
		if r, ok := t.routes[prefix+alias]; ok {
			return r, true
		}
	}
	return route{}, false
}

// splitQualified separates the longest known server prefix from name. The
// prefix is empty for unqualified toolsets.
func (t *Toolset) splitQualified(name string) (prefix, native string) {
	for _, p := range t.prefixes {
		if len(p) > len(prefix) && strings.HasPrefix(name, p) {
			prefix = p
		}
	}
	return prefix, name[len(prefix):]
}

// toolAliases returns the dash and underscore spellings of a native tool
// name that differ from it, for models that rewrite tool names.
func toolAliases(native string) []string {
	var out []string
	for _, alias := range []string{
		strings.ReplaceAll(native, "-", "_"),
		strings.ReplaceAll(native, "_", "-"),
	} {
		if alias != native && !slices.Contains(out, alias) {
			out = append(out, alias)
		}
	}
	return out
}

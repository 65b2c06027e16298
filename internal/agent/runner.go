package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/mcppool"
	"github.com/lydakis/mcpxagent/internal/models"
	"github.com/lydakis/mcpxagent/internal/resilience"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

// maxListedAlternatives caps the alternatives named in a model error.
const maxListedAlternatives = 3

// ServerLister enumerates registry servers.
type ServerLister interface {
	ListServers(includeDisabled bool) ([]string, error)
}

// Options wires a Runner. Backend and Manager are required; Servers is
// needed for auto-discovery.
type Options struct {
	Backend   backend.Backend
	Manager   *mcppool.Manager
	Servers   ServerLister
	Validator *models.Validator
	Resolver  *models.Resolver
	Retrier   *resilience.Retrier
	Breaker   *resilience.Breaker
	Metrics   telemetry.Metrics

	AutoFallback bool
	TaskType     string
	RoundTimeout time.Duration
}

// Runner exposes the public entry points. Every entry point returns the
// final answer, the incomplete marker or an ErrorPrefix string.
type Runner struct {
	opts    Options
	logger  *zap.Logger
	metrics telemetry.Metrics
}

func NewRunner(opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		opts:    opts,
		logger:  telemetry.OrNop(logger),
		metrics: telemetry.MetricsOrNop(opts.Metrics),
	}
}

// Request is one task run.
type Request struct {
	// Servers names the tool servers. A lone server keeps native tool
	// names unless Multi is set; AllServers uses every enabled server.
	Servers    []string
	Multi      bool
	AllServers bool
	Task       string
	MaxRounds  int
	MaxTokens  int
	Model      string
}

// RunSingleServer runs task against one tool server.
func (r *Runner) RunSingleServer(ctx context.Context, server, task string, maxRounds, maxTokens int, model string) string {
	return r.RunString(ctx, Request{Servers: []string{server}, Task: task, MaxRounds: maxRounds, MaxTokens: maxTokens, Model: model})
}

// RunMultiServer runs task against several tool servers at once.
func (r *Runner) RunMultiServer(ctx context.Context, servers []string, task string, maxRounds, maxTokens int, model string) string {
	return r.RunString(ctx, Request{Servers: servers, Multi: true, Task: task, MaxRounds: maxRounds, MaxTokens: maxTokens, Model: model})
}

// RunAutoDiscover runs task against every enabled registry server.
func (r *Runner) RunAutoDiscover(ctx context.Context, task string, maxRounds, maxTokens int, model string) string {
	return r.RunString(ctx, Request{AllServers: true, Task: task, MaxRounds: maxRounds, MaxTokens: maxTokens, Model: model})
}

// RunString runs req and flattens the outcome into a string.
func (r *Runner) RunString(ctx context.Context, req Request) string {
	out, err := r.Run(ctx, req)
	if err != nil {
		return ErrorPrefix + err.Error()
	}
	return out.Text
}

// Run validates the model, opens the tool servers, runs the loop and closes
// every session before returning.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	logger := r.logger.With(telemetry.RunIDField(uuid.NewString()))

	if strings.TrimSpace(req.Task) == "" {
		return Outcome{}, errors.New("task must not be empty")
	}
	if r.opts.Backend == nil || r.opts.Manager == nil {
		return Outcome{}, errors.New("runner is missing a backend or connection manager")
	}

	model, err := r.resolveModel(ctx, logger, req.Model)
	if err != nil {
		return Outcome{}, err
	}

	tools, err := r.open(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if cerr := tools.Close(); cerr != nil {
			logger.Warn("closing tool server sessions", zap.Error(cerr))
		}
	}()

	logger.Info("starting run",
		telemetry.ModelField(model),
		zap.Strings("servers", tools.Servers()),
		zap.Int("tools", len(tools.Tools())),
		zap.Int("max_rounds", req.MaxRounds),
	)

	loop := NewLoop(r.opts.Backend, tools, LoopConfig{
		Model:        model,
		MaxRounds:    req.MaxRounds,
		MaxTokens:    req.MaxTokens,
		RoundTimeout: r.opts.RoundTimeout,
	}, logger,
		WithLoopResilience(r.opts.Retrier, r.opts.Breaker),
		WithLoopMetrics(r.metrics),
	)
	out, err := loop.Run(ctx, req.Task)
	if err != nil {
		return out, err
	}

	logger.Info("run finished",
		zap.Stringer("state", out.State),
		zap.Int("rounds", out.Rounds),
		zap.Int("tool_calls", out.ToolCalls),
	)
	return out, nil
}

// resolveModel checks the requested model before any server is opened. An
// empty or "default" name is passed through as empty.
func (r *Runner) resolveModel(ctx context.Context, logger *zap.Logger, requested string) (string, error) {
	if models.IsDefault(requested) {
		return "", nil
	}
	if r.opts.Validator == nil {
		return requested, nil
	}

	lookup := r.opts.Validator.Lookup(ctx, requested)
	switch lookup.Status {
	case models.StatusValid:
		return requested, nil
	case models.StatusUnreachable:
		return "", lookup.Err
	}

	notFound := &models.ModelNotFoundError{Model: requested, Available: lookup.Available}
	if r.opts.Resolver == nil {
		return "", notFound
	}

	res, err := r.opts.Resolver.Resolve(ctx, requested, r.opts.AutoFallback, r.opts.TaskType)
	if err != nil {
		return "", err
	}
	switch res.Status {
	case models.StatusAvailable:
		return requested, nil
	case models.StatusFallback:
		logger.Info("model unavailable, falling back",
			zap.String("requested", requested),
			telemetry.ModelField(res.Model),
		)
		return res.Model, nil
	}

	if len(res.Alternatives) == 0 {
		return "", notFound
	}
	names := make([]string, 0, maxListedAlternatives)
	for i, alt := range res.Alternatives {
		if i == maxListedAlternatives {
			break
		}
		names = append(names, alt.ModelKey)
	}
	return "", fmt.Errorf("%w; closest alternatives: %s", notFound, strings.Join(names, ", "))
}

func (r *Runner) open(ctx context.Context, req Request) (*mcppool.Toolset, error) {
	servers := req.Servers
	if req.AllServers {
		if r.opts.Servers == nil {
			return nil, errors.New("no server registry configured")
		}
		names, err := r.opts.Servers.ListServers(false)
		if err != nil {
			return nil, fmt.Errorf("discovering servers: %w", err)
		}
		if len(names) == 0 {
			return nil, errors.New("no enabled tool servers found in registry")
		}
		servers = names
	}

	if len(servers) == 0 {
		return nil, errors.New("no tool servers requested")
	}
	if len(servers) == 1 && !req.Multi && !req.AllServers {
		return r.opts.Manager.OpenSingle(ctx, servers[0])
	}
	return r.opts.Manager.OpenMulti(ctx, servers)
}

// Package agent runs the autonomous tool-use loop: it drives the completion
// backend, dispatches the function calls it requests to tool servers and
// feeds the results back until the model answers or the round budget runs
// out.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/resilience"
	"github.com/lydakis/mcpxagent/internal/response"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Tools is the aggregated tool catalog of the open sessions.
type Tools interface {
	FunctionTools() []backend.FunctionTool
	Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// LoopConfig bounds one run.
type LoopConfig struct {
	Model        string
	MaxRounds    int
	MaxTokens    int
	RoundTimeout time.Duration
}

// Outcome is the terminal state of a run.
type Outcome struct {
	State     State
	Text      string
	Rounds    int
	ToolCalls int
	Cursor    Cursor
}

// Err returns ErrRoundsExhausted for exhausted runs and nil otherwise.
func (o Outcome) Err() error {
	if o.State == StateRoundExhausted {
		return ErrRoundsExhausted
	}
	return nil
}

// Loop is the control loop state machine for one task.
type Loop struct {
	backend backend.Backend
	tools   Tools
	cfg     LoopConfig
	logger  *zap.Logger
	metrics telemetry.Metrics
	retrier *resilience.Retrier
	breaker *resilience.Breaker
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopResilience wraps every backend turn in r and b. Either may be nil.
func WithLoopResilience(r *resilience.Retrier, b *resilience.Breaker) LoopOption {
	return func(l *Loop) {
		l.retrier = r
		l.breaker = b
	}
}

// WithLoopMetrics records rounds, turns and tool calls.
func WithLoopMetrics(m telemetry.Metrics) LoopOption {
	return func(l *Loop) {
		l.metrics = telemetry.MetricsOrNop(m)
	}
}

func NewLoop(be backend.Backend, tools Tools, cfg LoopConfig, logger *zap.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		backend: be,
		tools:   tools,
		cfg:     cfg,
		logger:  telemetry.OrNop(logger).Named("agent"),
		metrics: telemetry.NopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run sends task and loops until a final answer or the round budget. Round
// exhaustion is not an error: it yields an Outcome in StateRoundExhausted
// whose Text is the incomplete marker. Backend failures end the run.
func (l *Loop) Run(ctx context.Context, task string) (Outcome, error) {
	out := Outcome{State: StateStart}
	if l.cfg.MaxRounds <= 0 {
		return out, fmt.Errorf("max rounds must be > 0, got %d", l.cfg.MaxRounds)
	}

	tools := l.tools.FunctionTools()
	continuation := false

	for round := 0; round < l.cfg.MaxRounds; round++ {
		out.Rounds = round + 1
		out.State = StateAwaitingResponse

		req := backend.TurnRequest{
			Model:           l.cfg.Model,
			Input:           l.input(task, round, out.Cursor, continuation),
			Tools:           tools,
			ToolChoice:      backend.ToolChoiceAuto,
			PreviousTurnID:  out.Cursor.PreviousTurnID,
			MaxOutputTokens: l.cfg.MaxTokens,
		}
		if round == 0 && len(tools) > 0 {
			req.ToolChoice = backend.ToolChoiceRequired
		}
		out.Cursor.PendingResults = nil
		continuation = false

		done, err := l.round(ctx, round, req, &out)
		if err != nil {
			l.metrics.ObserveRound("error")
			return out, err
		}
		if done {
			l.metrics.ObserveRound("final")
			return out, nil
		}
		if out.State == StateFunctionCallPending {
			l.metrics.ObserveRound("tool_calls")
			continue
		}

		l.metrics.ObserveRound("unexpected")
		l.logger.Warn("response had neither function calls nor a message",
			telemetry.EventField(telemetry.EventUnexpectedFormat),
			telemetry.RoundField(round),
		)
		if round == l.cfg.MaxRounds-1 {
			return out, fmt.Errorf("round %d: %w", round, ErrUnexpectedFormat)
		}
		continuation = true
	}

	l.metrics.ObserveRound("exhausted")
	out.State = StateRoundExhausted
	out.Text = IncompleteMessage(l.cfg.MaxRounds)
	l.logger.Info("round budget exhausted", zap.Int("max_rounds", l.cfg.MaxRounds), zap.Int("tool_calls", out.ToolCalls))
	return out, nil
}

// round performs one turn and the tool calls it requests. It reports true
// when the turn carried the final answer.
func (l *Loop) round(ctx context.Context, round int, req backend.TurnRequest, out *Outcome) (bool, error) {
	if l.cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.RoundTimeout)
		defer cancel()
	}

	turn, err := l.respond(ctx, req)
	if err != nil {
		return false, fmt.Errorf("round %d: %w", round, err)
	}
	if turn.ID != "" {
		out.Cursor.PreviousTurnID = turn.ID
	}

	calls := turn.FunctionCalls()
	if len(calls) > 0 {
		out.State = StateFunctionCallPending
		for _, call := range calls {
			out.Cursor.PendingResults = append(out.Cursor.PendingResults, l.execute(ctx, round, call))
			out.ToolCalls++
		}
		return false, nil
	}

	if text, ok := turn.Message(); ok {
		out.State = StateFinalAnswer
		out.Text = text
		return true, nil
	}
	return false, nil
}

func (l *Loop) respond(ctx context.Context, req backend.TurnRequest) (*backend.Turn, error) {
	return resilience.Call(ctx, l.retrier, l.breaker, "backend turn", func(ctx context.Context) (*backend.Turn, error) {
		start := time.Now()
		turn, err := l.backend.Respond(ctx, req)
		l.metrics.ObserveBackendTurn(time.Since(start), err)
		if err == nil && turn == nil {
			turn = &backend.Turn{}
		}
		return turn, err
	})
}

// execute runs one function call. Failures become result text.
func (l *Loop) execute(ctx context.Context, round int, call backend.OutputItem) ToolResult {
	res := ToolResult{Name: call.Name, CallID: call.CallID}

	args := call.Arguments
	if call.ArgumentsErr != nil {
		l.logger.Warn("malformed function call arguments, using {}",
			telemetry.EventField(telemetry.EventMalformedArgs),
			telemetry.RoundField(round),
			telemetry.ToolField(call.Name),
			zap.Error(call.ArgumentsErr),
		)
		args = map[string]any{}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := l.tools.Call(ctx, call.Name, args)
	if err != nil {
		toolErr := &ToolExecutionError{Tool: call.Name, Err: err}
		l.logger.Warn("tool call failed",
			telemetry.EventField(telemetry.EventToolCall),
			telemetry.RoundField(round),
			telemetry.ToolField(call.Name),
			zap.Error(toolErr),
		)
		res.Text = response.FormatError(toolErr)
		return res
	}

	res.Text = response.ForModel(result)
	l.logger.Debug("tool call finished",
		telemetry.EventField(telemetry.EventToolCall),
		telemetry.RoundField(round),
		telemetry.ToolField(call.Name),
		zap.Bool("is_error", result != nil && result.IsError),
	)
	return res
}

func (l *Loop) input(task string, round int, cursor Cursor, continuation bool) string {
	switch {
	case round == 0:
		return task
	case len(cursor.PendingResults) > 0:
		return resultsBlock(cursor.PendingResults)
	case continuation:
		return continuationPrompt
	default:
		return task
	}
}

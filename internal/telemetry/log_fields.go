package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldServer     = "server"
	FieldTool       = "tool"
	FieldRound      = "round"
	FieldModel      = "model"
	FieldRunID      = "run_id"
	FieldAttempt    = "attempt"
	FieldDurationMs = "duration_ms"
)

const (
	EventRetryAttempt      = "retry_attempt"
	EventRetryExhausted    = "retry_exhausted"
	EventBreakerTransition = "breaker_transition"
	EventSessionOpen       = "session_open"
	EventSessionFailure    = "session_failure"
	EventSessionClose      = "session_close"
	EventToolCall          = "tool_call"
	EventMalformedArgs     = "malformed_arguments"
	EventUnexpectedFormat  = "unexpected_response_format"
	EventModelFetch        = "model_fetch"
	EventModelFallback     = "model_fallback"
	EventRegistryChange    = "registry_change"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ServerField(server string) zap.Field {
	return zap.String(FieldServer, server)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func RoundField(round int) zap.Field {
	return zap.Int(FieldRound, round)
}

func ModelField(model string) zap.Field {
	return zap.String(FieldModel, model)
}

func RunIDField(id string) zap.Field {
	return zap.String(FieldRunID, id)
}

func AttemptField(attempt int) zap.Field {
	return zap.Int(FieldAttempt, attempt)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

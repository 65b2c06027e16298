// Package backend talks to the completion backend: a model listing endpoint
// and a stateful, turn-based completion endpoint with function calling.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolChoice is the tool-use directive sent with a turn.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// FunctionTool is a tool in function-calling schema form.
type FunctionTool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TurnRequest is one turn of a stateful conversation.
type TurnRequest struct {
	Model           string // empty lets the backend pick
	Input           string
	Tools           []FunctionTool
	ToolChoice      ToolChoice
	PreviousTurnID  string // empty starts a new conversation
	MaxOutputTokens int
}

// ItemType discriminates output items.
type ItemType string

const (
	ItemFunctionCall ItemType = "function_call"
	ItemMessage      ItemType = "message"
)

// OutputItem is a function call or a textual message. Function call
// arguments are already normalized: ArgumentsErr is set when the backend sent
// a payload that was not a JSON object, in which case Arguments is empty.
type OutputItem struct {
	Type         ItemType
	Name         string
	CallID       string
	Arguments    map[string]any
	ArgumentsErr error
	Text         string
}

// Turn is the backend's reply to a TurnRequest.
type Turn struct {
	ID     string
	Output []OutputItem
}

// FunctionCalls returns the function call items in request order.
func (t *Turn) FunctionCalls() []OutputItem {
	if t == nil {
		return nil
	}
	var calls []OutputItem
	for _, item := range t.Output {
		if item.Type == ItemFunctionCall {
			calls = append(calls, item)
		}
	}
	return calls
}

// Message returns the concatenated text of message items, and whether any
// message item was present.
func (t *Turn) Message() (string, bool) {
	if t == nil {
		return "", false
	}
	var (
		parts []string
		found bool
	)
	for _, item := range t.Output {
		if item.Type != ItemMessage {
			continue
		}
		found = true
		if item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n"), found
}

// Backend is a completion backend.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	Respond(ctx context.Context, req TurnRequest) (*Turn, error)
}

// DecodeArguments normalizes a function call argument payload, which may be
// a JSON object, a JSON-encoded string or nothing, into a map. An empty
// payload is {}. A malformed payload yields {} and a non-nil error.
func DecodeArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case string:
		return decodeArgumentBytes([]byte(v))
	case []byte:
		return decodeArgumentBytes(v)
	case json.RawMessage:
		return decodeArgumentBytes(v)
	default:
		return map[string]any{}, fmt.Errorf("unsupported argument payload type %T", raw)
	}
}

func decodeArgumentBytes(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return map[string]any{}, nil
	}

	// Some models double-encode: "{\"path\": \"/tmp\"}".
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return map[string]any{}, fmt.Errorf("decoding argument string: %w", err)
		}
		return decodeArgumentBytes([]byte(inner))
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}, fmt.Errorf("decoding arguments: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

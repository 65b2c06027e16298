package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

const defaultMaxConversations = 256

// ModelLister lists servable model identifiers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ChatModelBackend gives a stateless chat-completion model the stateful
// turn contract: history is kept client-side and keyed by issued turn IDs.
type ChatModelBackend struct {
	model  model.ToolCallingChatModel
	lister ModelLister
	newID  func() string

	mu      sync.Mutex
	history map[string][]*schema.Message
	order   []string
	limit   int
}

// ChatOption customizes a ChatModelBackend.
type ChatOption func(*ChatModelBackend)

// WithTurnIDs overrides UUID turn identifiers.
func WithTurnIDs(fn func() string) ChatOption {
	return func(b *ChatModelBackend) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// WithMaxConversations bounds how many turn histories are retained.
func WithMaxConversations(n int) ChatOption {
	return func(b *ChatModelBackend) {
		if n > 0 {
			b.limit = n
		}
	}
}

func NewChatModelBackend(m model.ToolCallingChatModel, lister ModelLister, opts ...ChatOption) *ChatModelBackend {
	b := &ChatModelBackend{
		model:   m,
		lister:  lister,
		newID:   func() string { return "chat_" + uuid.NewString() },
		history: make(map[string][]*schema.Message),
		limit:   defaultMaxConversations,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewOpenAIChatModel builds an eino chat model for an OpenAI-compatible
// endpoint.
func NewOpenAIChatModel(ctx context.Context, cfg ClientConfig, modelName string) (model.ToolCallingChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  cfg.APIKey,
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return cm, nil
}

func (b *ChatModelBackend) ListModels(ctx context.Context) ([]string, error) {
	if b.lister == nil {
		return nil, fmt.Errorf("model listing is not configured")
	}
	return b.lister.ListModels(ctx)
}

func (b *ChatModelBackend) Respond(ctx context.Context, req TurnRequest) (*Turn, error) {
	messages, err := b.conversation(req.PreviousTurnID)
	if err != nil {
		return nil, err
	}
	messages = append(messages, schema.UserMessage(req.Input))

	cm := b.model
	var opts []model.Option
	if len(req.Tools) > 0 {
		cm, err = b.model.WithTools(ToolInfos(req.Tools))
		if err != nil {
			return nil, fmt.Errorf("binding tools: %w", err)
		}
		opts = append(opts, model.WithToolChoice(einoToolChoice(req.ToolChoice)))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.MaxOutputTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxOutputTokens))
	}

	reply, err := cm.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}
	if reply == nil {
		return nil, fmt.Errorf("generating: empty reply")
	}

	turn := &Turn{ID: b.newID()}
	for _, tc := range reply.ToolCalls {
		args, argsErr := DecodeArguments(tc.Function.Arguments)
		turn.Output = append(turn.Output, OutputItem{
			Type:         ItemFunctionCall,
			Name:         tc.Function.Name,
			CallID:       tc.ID,
			Arguments:    args,
			ArgumentsErr: argsErr,
		})
	}
	if text := strings.TrimSpace(reply.Content); text != "" {
		turn.Output = append(turn.Output, OutputItem{Type: ItemMessage, Text: reply.Content})
	}

	b.remember(turn.ID, append(messages, historyRecord(reply)))
	return turn, nil
}

func (b *ChatModelBackend) conversation(previous string) ([]*schema.Message, error) {
	if previous == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, ok := b.history[previous]
	if !ok {
		return nil, fmt.Errorf("unknown previous turn %q", previous)
	}
	return append([]*schema.Message(nil), msgs...), nil
}

func (b *ChatModelBackend) remember(id string, msgs []*schema.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[id] = msgs
	b.order = append(b.order, id)
	for len(b.order) > b.limit {
		delete(b.history, b.order[0])
		b.order = b.order[1:]
	}
}

// historyRecord stores tool requests as plain assistant text. The next turn
// carries tool results as a user message rather than tool messages, and
// chat APIs reject assistant tool_calls without matching tool replies.
func historyRecord(reply *schema.Message) *schema.Message {
	if len(reply.ToolCalls) == 0 {
		return schema.AssistantMessage(reply.Content, nil)
	}
	calls := make([]string, 0, len(reply.ToolCalls))
	for _, tc := range reply.ToolCalls {
		calls = append(calls, fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
	}
	text := "Requested tool calls: " + strings.Join(calls, "; ")
	if content := strings.TrimSpace(reply.Content); content != "" {
		text = content + "\n" + text
	}
	return schema.AssistantMessage(text, nil)
}

func einoToolChoice(choice ToolChoice) schema.ToolChoice {
	switch choice {
	case ToolChoiceRequired:
		return schema.ToolChoiceForced
	case ToolChoiceNone:
		return schema.ToolChoiceForbidden
	default:
		return schema.ToolChoiceAllowed
	}
}

// ToolInfos converts function tools into eino tool descriptions.
func ToolInfos(tools []FunctionTool) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		out = append(out, &schema.ToolInfo{
			Name:        tool.Name,
			Desc:        tool.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(objectParams(tool.Parameters)),
		})
	}
	return out
}

func objectParams(obj map[string]any) map[string]*schema.ParameterInfo {
	props, _ := obj["properties"].(map[string]any)
	if len(props) == 0 {
		return map[string]*schema.ParameterInfo{}
	}
	required := requiredSet(obj["required"])

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]*schema.ParameterInfo, len(props))
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		info := paramInfo(prop)
		info.Required = required[name]
		out[name] = info
	}
	return out
}

func paramInfo(prop map[string]any) *schema.ParameterInfo {
	info := &schema.ParameterInfo{Type: dataType(prop["type"])}
	if desc, ok := prop["description"].(string); ok {
		info.Desc = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		for _, v := range enum {
			info.Enum = append(info.Enum, fmt.Sprint(v))
		}
	}
	switch info.Type {
	case schema.Object:
		info.SubParams = objectParams(prop)
	case schema.Array:
		if items, ok := prop["items"].(map[string]any); ok {
			info.ElemInfo = paramInfo(items)
		} else {
			info.ElemInfo = &schema.ParameterInfo{Type: schema.String}
		}
	}
	return info
}

func dataType(raw any) schema.DataType {
	var name string
	switch v := raw.(type) {
	case string:
		name = v
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok && s != "null" {
				name = s
				break
			}
		}
	}
	switch name {
	case "object":
		return schema.Object
	case "array":
		return schema.Array
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "null":
		return schema.Null
	default:
		return schema.String
	}
}

func requiredSet(raw any) map[string]bool {
	out := make(map[string]bool)
	switch v := raw.(type) {
	case []string:
		for _, name := range v {
			out[name] = true
		}
	case []any:
		for _, name := range v {
			if s, ok := name.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

var _ Backend = (*ChatModelBackend)(nil)

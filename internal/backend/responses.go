package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lydakis/mcpxagent/internal/httpheaders"
)

const maxErrorBody = 4 << 10

// ClientConfig configures HTTP backend clients.
type ClientConfig struct {
	BaseURL    string // e.g. http://localhost:1234/v1
	APIKey     string
	Headers    map[string]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c ClientConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c ClientConfig) headers() map[string]string {
	headers := httpheaders.Merge(nil, c.Headers, true)
	headers = httpheaders.WithBearer(headers, c.APIKey)
	return httpheaders.Set(headers, "Accept", "application/json")
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Retryable reports whether a backend failure may succeed on a later
// attempt. Client errors are final except request timeouts and rate limits.
func Retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return true
	}
	code := httpErr.StatusCode
	if code < 400 || code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// ResponsesClient speaks the OpenAI-compatible Responses API, where the
// server keeps conversation history and each reply carries an ID that the
// next request references as previous_response_id.
type ResponsesClient struct {
	baseURL string
	headers map[string]string
	http    *http.Client
}

func NewResponsesClient(cfg ClientConfig) *ResponsesClient {
	return &ResponsesClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		headers: cfg.headers(),
		http:    cfg.httpClient(),
	}
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the identifiers from GET {base}/models.
func (c *ResponsesClient) ListModels(ctx context.Context) ([]string, error) {
	var list modelList
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/models", nil, &list); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type responsesRequest struct {
	Model              string          `json:"model,omitempty"`
	Input              string          `json:"input"`
	Tools              []responsesTool `json:"tools,omitempty"`
	ToolChoice         ToolChoice      `json:"tool_choice,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
	MaxOutputTokens    int             `json:"max_output_tokens,omitempty"`
}

type responsesOutputItem struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`
	Content   json.RawMessage `json:"content"`
}

type responsesResponse struct {
	ID     string                `json:"id"`
	Output []responsesOutputItem `json:"output"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Respond posts one turn to {base}/responses.
func (c *ResponsesClient) Respond(ctx context.Context, req TurnRequest) (*Turn, error) {
	body := responsesRequest{
		Model:              req.Model,
		Input:              req.Input,
		ToolChoice:         req.ToolChoice,
		PreviousResponseID: req.PreviousTurnID,
		MaxOutputTokens:    req.MaxOutputTokens,
	}
	for _, tool := range req.Tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		body.Tools = append(body.Tools, responsesTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	if len(body.Tools) == 0 {
		body.ToolChoice = ""
	}

	var resp responsesResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/responses", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, fmt.Errorf("backend error: %s", resp.Error.Message)
	}

	turn := &Turn{ID: resp.ID}
	for _, item := range resp.Output {
		switch item.Type {
		case string(ItemFunctionCall):
			args, argsErr := DecodeArguments(json.RawMessage(item.Arguments))
			turn.Output = append(turn.Output, OutputItem{
				Type:         ItemFunctionCall,
				Name:         item.Name,
				CallID:       item.CallID,
				Arguments:    args,
				ArgumentsErr: argsErr,
			})
		case string(ItemMessage):
			turn.Output = append(turn.Output, OutputItem{
				Type: ItemMessage,
				Text: messageText(item.Content),
			})
		}
	}
	return turn, nil
}

// messageText accepts either a plain string or a list of content parts.
func messageText(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Text != "" && (p.Type == "" || p.Type == "output_text" || p.Type == "text") {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "")
}

func (c *ResponsesClient) do(ctx context.Context, method, url string, in, out any) error {
	return doJSON(ctx, c.http, c.headers, method, url, in, out)
}

func doJSON(ctx context.Context, client *http.Client, headers map[string]string, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpheaders.Apply(req.Header, headers)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", url, err)
	}
	return nil
}

var _ Backend = (*ResponsesClient)(nil)

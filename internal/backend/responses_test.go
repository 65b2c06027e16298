package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponsesClientListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"id":"qwen2.5-7b-instruct"},{"id":""},{"id":"text-embedding-nomic"}]}`))
	}))
	defer srv.Close()

	c := NewResponsesClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret"})
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5-7b-instruct", "text-embedding-nomic"}, models)
}

func TestResponsesClientRespond(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"id": "resp_2",
			"output": [
				{"type": "reasoning", "content": []},
				{"type": "function_call", "name": "fs__read_file", "call_id": "call_1", "arguments": "{\"path\":\"/tmp/a\"}"},
				{"type": "function_call", "name": "fs__list", "call_id": "call_2", "arguments": {"dir": "/"}},
				{"type": "function_call", "name": "fs__bad", "call_id": "call_3", "arguments": "{oops"},
				{"type": "message", "content": [{"type": "output_text", "text": "working"}]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewResponsesClient(ClientConfig{BaseURL: srv.URL + "/v1", Headers: map[string]string{"X-Trace": "yes"}})
	turn, err := c.Respond(context.Background(), TurnRequest{
		Model:           "qwen",
		Input:           "list files",
		PreviousTurnID:  "resp_1",
		ToolChoice:      ToolChoiceRequired,
		MaxOutputTokens: 256,
		Tools: []FunctionTool{{
			Name:        "fs__read_file",
			Description: "[fs] read",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "qwen", got["model"])
	assert.Equal(t, "list files", got["input"])
	assert.Equal(t, "resp_1", got["previous_response_id"])
	assert.Equal(t, "required", got["tool_choice"])
	assert.Equal(t, float64(256), got["max_output_tokens"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].(map[string]any)["type"])

	assert.Equal(t, "resp_2", turn.ID)
	calls := turn.FunctionCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, map[string]any{"path": "/tmp/a"}, calls[0].Arguments)
	assert.Equal(t, "call_1", calls[0].CallID)
	assert.Equal(t, map[string]any{"dir": "/"}, calls[1].Arguments)
	assert.Equal(t, map[string]any{}, calls[2].Arguments)
	assert.Error(t, calls[2].ArgumentsErr)

	text, ok := turn.Message()
	assert.True(t, ok)
	assert.Equal(t, "working", text)
}

func TestResponsesClientOmitsToolChoiceWithoutTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"r","output":[{"type":"message","content":"plain"}]}`))
	}))
	defer srv.Close()

	turn, err := NewResponsesClient(ClientConfig{BaseURL: srv.URL}).Respond(context.Background(), TurnRequest{
		Input:      "hi",
		ToolChoice: ToolChoiceRequired,
	})
	require.NoError(t, err)

	_, hasChoice := got["tool_choice"]
	assert.False(t, hasChoice)
	_, hasPrev := got["previous_response_id"]
	assert.False(t, hasPrev)

	text, _ := turn.Message()
	assert.Equal(t, "plain", text)
}

func TestResponsesClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewResponsesClient(ClientConfig{BaseURL: srv.URL}).Respond(context.Background(), TurnRequest{Input: "x"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRetryableSkipsClientErrors(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: &HTTPError{StatusCode: http.StatusBadRequest}, want: false},
		{err: fmt.Errorf("turn: %w", &HTTPError{StatusCode: http.StatusNotFound}), want: false},
		{err: &HTTPError{StatusCode: http.StatusRequestTimeout}, want: true},
		{err: &HTTPError{StatusCode: http.StatusTooManyRequests}, want: true},
		{err: &HTTPError{StatusCode: http.StatusBadGateway}, want: true},
		{err: errors.New("connection refused"), want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.err), tt.err.Error())
	}
}

func TestCatalogClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"id":"qwen2.5-coder-7b-instruct","type":"llm","publisher":"qwen","state":"not-loaded","capabilities":["tool_use"]},
			{"id":"text-embedding-nomic-embed-text-v1.5","type":"embeddings","publisher":"nomic-ai"}
		]}`))
	}))
	defer srv.Close()

	models, err := NewCatalogClient(ClientConfig{BaseURL: srv.URL + "/v1"}).DownloadedModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.True(t, models[0].TrainedForToolUse())
	assert.False(t, models[0].IsEmbedding())
	assert.True(t, models[1].IsEmbedding())
}

func TestCatalogURL(t *testing.T) {
	assert.Equal(t, "http://localhost:1234/api/v0/models", CatalogURL("http://localhost:1234/v1"))
	assert.Equal(t, "http://localhost:1234/api/v0/models", CatalogURL("http://localhost:1234/v1/"))
	assert.Equal(t, "http://host/api/v0/models", CatalogURL("http://host"))
}

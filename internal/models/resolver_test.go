package models

import (
	"context"
	"errors"
	"testing"

	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCatalog struct {
	models []backend.DownloadedModel
	err    error
}

func (c staticCatalog) DownloadedModels(context.Context) ([]backend.DownloadedModel, error) {
	return c.models, c.err
}

func downloaded() []backend.DownloadedModel {
	return []backend.DownloadedModel{
		{ID: "llama-3.1-8b-instruct", Type: "llm", Publisher: "meta", State: "loaded", Capabilities: []string{"tool_use"}},
		{ID: "qwen2.5-7b-instruct", Type: "llm", Publisher: "qwen", Capabilities: []string{"tool_use"}},
		{ID: "deepseek-coder-v2-lite", Type: "llm", Publisher: "deepseek"},
		{ID: "text-embedding-nomic-embed-text-v1.5", Type: "embeddings", Publisher: "nomic-ai"},
	}
}

func servedIDs() []string {
	return []string{"llama-3.1-8b-instruct", "qwen2.5-7b-instruct"}
}

func TestFindAlternativesRanksSharedSpecializationFirst(t *testing.T) {
	v := NewValidator(&countingLister{models: servedIDs()}, nil)
	r := NewResolver(v, staticCatalog{models: downloaded()}, nil)

	alts, err := r.FindAlternatives(context.Background(), "qwen2.5-coder-7b-instruct", "general", 0)
	require.NoError(t, err)
	require.Len(t, alts, 3)

	assert.Equal(t, "deepseek-coder-v2-lite", alts[0].ModelKey)
	assert.Contains(t, alts[0].Reasons, "shares coder specialization")
	for _, alt := range alts {
		assert.NotEqual(t, "text-embedding-nomic-embed-text-v1.5", alt.ModelKey)
	}
}

func TestFindAlternativesScoresSizeAndToolUse(t *testing.T) {
	v := NewValidator(&countingLister{models: servedIDs()}, nil)
	r := NewResolver(v, staticCatalog{models: downloaded()}, nil)

	alts, err := r.FindAlternatives(context.Background(), "mistral-7b-instruct", "", 2)
	require.NoError(t, err)
	require.Len(t, alts, 2)

	// qwen: instruct 20 + same size 20 + tool use 15
	assert.Equal(t, "qwen2.5-7b-instruct", alts[0].ModelKey)
	assert.Equal(t, 55, alts[0].Score)
	assert.True(t, alts[0].TrainedForToolUse)
	assert.Equal(t, []string{
		"instruction-tuned like the requested model",
		"same size class (7B)",
		"trained for tool use",
	}, alts[0].Reasons)

	// llama: instruct 20 + similar size 10 + tool use 15 + loaded 5
	assert.Equal(t, "llama-3.1-8b-instruct", alts[1].ModelKey)
	assert.Equal(t, 50, alts[1].Score)
}

func TestFindAlternativesFallsBackToServedModels(t *testing.T) {
	v := NewValidator(&countingLister{models: []string{"a-coder-1b", "b-chat", "nomic-embed"}}, nil)
	r := NewResolver(v, staticCatalog{err: errors.New("404")}, nil)

	alts, err := r.FindAlternatives(context.Background(), "big-coder-33b", "", 0)
	require.NoError(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, "a-coder-1b", alts[0].ModelKey)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	newResolver := func() *Resolver {
		v := NewValidator(&countingLister{models: servedIDs()}, nil)
		return NewResolver(v, staticCatalog{models: downloaded()}, nil)
	}

	res, err := newResolver().Resolve(ctx, "qwen2.5-7b-instruct", false, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, res.Status)
	assert.Equal(t, "qwen2.5-7b-instruct", res.Model)
	assert.Nil(t, res.Alternatives)

	res, err = newResolver().Resolve(ctx, "qwen2.5-coder-7b-instruct", true, "coding")
	require.NoError(t, err)
	assert.Equal(t, StatusFallback, res.Status)
	assert.Equal(t, "deepseek-coder-v2-lite", res.Model)
	assert.Len(t, res.Alternatives, 3)

	res, err = newResolver().Resolve(ctx, "qwen2.5-coder-7b-instruct", false, "coding")
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Equal(t, "qwen2.5-coder-7b-instruct", res.Model)
	assert.Len(t, res.Alternatives, 3)
}

func TestResolveUnreachable(t *testing.T) {
	v := NewValidator(&countingLister{err: errors.New("down")}, nil)
	_, err := NewResolver(v, nil, nil).Resolve(context.Background(), "m", true, "")

	var connErr *ModelConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestParseSizeAndCapabilities(t *testing.T) {
	assert.Equal(t, 7.0, parseSize("qwen2.5-coder-7b-instruct"))
	assert.Equal(t, 0.5, parseSize("qwen2.5-0.5b-instruct"))
	assert.Equal(t, 0.0, parseSize("mixtral-8x7b"))
	assert.Equal(t, 0.0, parseSize("gpt-oss"))

	caps := capabilities("deepseek-r1-distill-qwen-7b")
	assert.True(t, caps[capReasoning])
	assert.False(t, caps[capCoder])

	caps = capabilities("gemma-2-9b-it")
	assert.True(t, caps[capInstruct])
}

package models

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

// Score weights. A shared specialization outweighs every other signal
// combined.
const (
	scoreSpecialization = 100
	scoreInstruct       = 20
	scoreTaskType       = 25
	scoreSameSize       = 20
	scoreNearSize       = 10
	scoreToolUse        = 15
	scorePublisher      = 10
	scoreLoaded         = 5
)

var sizeTokenRe = regexp.MustCompile(`(?:^|[^a-z0-9.])(\d+(?:\.\d+)?)b(?:$|[^a-z0-9])`)

type capability string

const (
	capCoder     capability = "coder"
	capReasoning capability = "reasoning"
	capInstruct  capability = "instruct"
)

// Alternative is a scored substitute for an unavailable model.
type Alternative struct {
	ModelKey          string
	DisplayName       string
	Score             int
	Reasons           []string
	TrainedForToolUse bool
	SizeBytes         *int64
}

// ResolveStatus is the outcome of Resolve.
type ResolveStatus string

const (
	StatusAvailable   ResolveStatus = "available"
	StatusFallback    ResolveStatus = "fallback"
	StatusUnavailable ResolveStatus = "unavailable"
)

// Resolution is the result of Resolve. Alternatives is nil when the
// requested model is available.
type Resolution struct {
	Requested    string
	Model        string
	Status       ResolveStatus
	Alternatives []Alternative
}

// Resolver proposes substitutes for unavailable models from the downloaded
// model catalog.
type Resolver struct {
	validator *Validator
	catalog   backend.Catalog
	logger    *zap.Logger
}

// NewResolver returns a Resolver. With a nil catalog, candidates are the
// validator's available models without metadata.
func NewResolver(validator *Validator, catalog backend.Catalog, logger *zap.Logger) *Resolver {
	return &Resolver{
		validator: validator,
		catalog:   catalog,
		logger:    telemetry.OrNop(logger).Named("resolver"),
	}
}

// FindAlternatives scores every downloaded model against requested and
// returns them best first. maxResults <= 0 returns all.
func (r *Resolver) FindAlternatives(ctx context.Context, requested, taskType string, maxResults int) ([]Alternative, error) {
	candidates, err := r.candidates(ctx)
	if err != nil {
		return nil, err
	}

	req := profileOf(requested, "")
	var out []Alternative
	for _, cand := range candidates {
		if cand.IsEmbedding() || cand.ID == requested {
			continue
		}
		out = append(out, score(req, cand, taskType))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ModelKey < out[j].ModelKey
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// Resolve returns requested when available. Otherwise it returns the best
// alternative with StatusFallback when autoFallback is set, or requested with
// StatusUnavailable and every alternative.
func (r *Resolver) Resolve(ctx context.Context, requested string, autoFallback bool, taskType string) (Resolution, error) {
	res := Resolution{Requested: requested, Model: requested}

	lookup := r.validator.Lookup(ctx, requested)
	switch lookup.Status {
	case StatusValid:
		res.Status = StatusAvailable
		return res, nil
	case StatusUnreachable:
		return res, lookup.Err
	}

	alternatives, err := r.FindAlternatives(ctx, requested, taskType, 0)
	if err != nil {
		return res, err
	}
	res.Alternatives = alternatives
	res.Status = StatusUnavailable

	if autoFallback && len(alternatives) > 0 {
		res.Model = alternatives[0].ModelKey
		res.Status = StatusFallback
		r.logger.Info("using fallback model",
			telemetry.EventField(telemetry.EventModelFallback),
			zap.String("requested", requested),
			telemetry.ModelField(res.Model),
			zap.Int("score", alternatives[0].Score),
			zap.Strings("reasons", alternatives[0].Reasons),
		)
	}
	return res, nil
}

func (r *Resolver) candidates(ctx context.Context) ([]backend.DownloadedModel, error) {
	if r.catalog != nil {
		models, err := r.catalog.DownloadedModels(ctx)
		if err == nil {
			return models, nil
		}
		r.logger.Warn("model catalog unavailable, using served models", zap.Error(err))
	}

	ids, err := r.validator.AvailableModels(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]backend.DownloadedModel, 0, len(ids))
	for _, id := range ids {
		typ := "llm"
		if strings.Contains(strings.ToLower(id), "embed") {
			typ = "embeddings"
		}
		out = append(out, backend.DownloadedModel{ID: id, Type: typ})
	}
	return out, nil
}

type profile struct {
	caps      map[capability]bool
	sizeB     float64 // parameters in billions; 0 when unknown
	publisher string
}

func profileOf(id, publisher string) profile {
	lower := strings.ToLower(id)
	p := profile{caps: capabilities(lower), sizeB: parseSize(lower), publisher: strings.ToLower(publisher)}
	if p.publisher == "" {
		if i := strings.Index(lower, "/"); i > 0 {
			p.publisher = lower[:i]
		}
	}
	return p
}

func capabilities(lower string) map[capability]bool {
	caps := make(map[capability]bool)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	if strings.Contains(lower, "code") {
		caps[capCoder] = true
	}
	if strings.Contains(lower, "reason") || strings.Contains(lower, "think") || tokenSet["r1"] || tokenSet["qwq"] {
		caps[capReasoning] = true
	}
	if strings.Contains(lower, "instruct") || tokenSet["chat"] || tokenSet["it"] {
		caps[capInstruct] = true
	}
	return caps
}

func parseSize(lower string) float64 {
	m := sizeTokenRe.FindStringSubmatch(lower)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func taskCapability(taskType string) (capability, bool) {
	switch strings.ToLower(strings.TrimSpace(taskType)) {
	case "code", "coding", "coder":
		return capCoder, true
	case "reasoning", "math", "analysis":
		return capReasoning, true
	default:
		return "", false
	}
}

func score(req profile, cand backend.DownloadedModel, taskType string) Alternative {
	c := profileOf(cand.ID, cand.Publisher)
	alt := Alternative{
		ModelKey:          cand.ID,
		DisplayName:       path.Base(cand.ID),
		TrainedForToolUse: cand.TrainedForToolUse(),
		SizeBytes:         cand.SizeBytes,
	}
	add := func(points int, reason string) {
		alt.Score += points
		alt.Reasons = append(alt.Reasons, reason)
	}

	for _, capName := range []capability{capCoder, capReasoning, capInstruct} {
		if !req.caps[capName] || !c.caps[capName] {
			continue
		}
		if capName == capInstruct {
			add(scoreInstruct, "instruction-tuned like the requested model")
		} else {
			add(scoreSpecialization, fmt.Sprintf("shares %s specialization", capName))
		}
	}

	if capName, ok := taskCapability(taskType); ok && c.caps[capName] {
		add(scoreTaskType, fmt.Sprintf("suited to %s tasks", taskType))
	}

	if req.sizeB > 0 && c.sizeB > 0 {
		switch ratio := c.sizeB / req.sizeB; {
		case ratio == 1:
			add(scoreSameSize, fmt.Sprintf("same size class (%sB)", formatSize(c.sizeB)))
		case ratio >= 0.5 && ratio <= 2:
			add(scoreNearSize, fmt.Sprintf("similar size (%sB vs %sB)", formatSize(c.sizeB), formatSize(req.sizeB)))
		}
	}

	if alt.TrainedForToolUse {
		add(scoreToolUse, "trained for tool use")
	}

	if req.publisher != "" && c.publisher == req.publisher {
		add(scorePublisher, "same publisher ("+c.publisher+")")
	}

	if strings.EqualFold(cand.State, "loaded") {
		add(scoreLoaded, "already loaded")
	}
	return alt
}

func formatSize(b float64) string {
	return strconv.FormatFloat(b, 'f', -1, 64)
}

// Package models validates requested model names against the completion
// backend and proposes substitutes for unavailable ones.
package models

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/resilience"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultModel lets the backend pick its loaded model.
const DefaultModel = "default"

const defaultCacheTTL = 60 * time.Second

// IsDefault reports whether name defers model choice to the backend.
func IsDefault(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || name == DefaultModel
}

// LookupStatus tags the outcome of Validator.Lookup.
type LookupStatus int

const (
	StatusValid LookupStatus = iota
	StatusNotFound
	StatusUnreachable
)

func (s LookupStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNotFound:
		return "not_found"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ModelLookup is the tagged outcome of checking one model name.
type ModelLookup struct {
	Status    LookupStatus
	Model     string
	Available []string // set for StatusNotFound
	Err       error    // set for StatusUnreachable
}

type cacheEntry struct {
	models    map[string]struct{}
	fetchedAt time.Time
}

// Validator serves the backend's model list from a private TTL cache. A
// refresh is shared by concurrent callers.
type Validator struct {
	lister  backend.ModelLister
	ttl     time.Duration
	now     func() time.Time
	retrier *resilience.Retrier
	breaker *resilience.Breaker
	metrics telemetry.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	entry *cacheEntry
	group singleflight.Group
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

func WithTTL(ttl time.Duration) ValidatorOption {
	return func(v *Validator) { v.ttl = ttl }
}

func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithResilience wraps fetches in retry and a circuit breaker. Either may
// be nil.
func WithResilience(r *resilience.Retrier, b *resilience.Breaker) ValidatorOption {
	return func(v *Validator) {
		v.retrier = r
		v.breaker = b
	}
}

func WithMetrics(m telemetry.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = telemetry.MetricsOrNop(m) }
}

func NewValidator(lister backend.ModelLister, logger *zap.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		lister:  lister,
		ttl:     defaultCacheTTL,
		now:     time.Now,
		metrics: telemetry.NopMetrics{},
		logger:  telemetry.OrNop(logger).Named("validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AvailableModels returns the servable model identifiers, sorted. With
// useCache, a list fetched less than the TTL ago is returned without a
// network call.
func (v *Validator) AvailableModels(ctx context.Context, useCache bool) ([]string, error) {
	if useCache {
		if models, ok := v.cached(); ok {
			v.metrics.ObserveModelList(true)
			return models, nil
		}
	}

	res, err, _ := v.group.Do("models", func() (any, error) {
		// A flight that finished just before this one may have refreshed.
		if useCache {
			if models, ok := v.cached(); ok {
				return models, nil
			}
		}
		return v.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	v.metrics.ObserveModelList(false)
	return append([]string(nil), res.([]string)...), nil
}

// ClearCache forces the next AvailableModels call to fetch.
func (v *Validator) ClearCache() {
	v.mu.Lock()
	v.entry = nil
	v.mu.Unlock()
}

// Lookup checks name without returning errors for expected outcomes.
func (v *Validator) Lookup(ctx context.Context, name string) ModelLookup {
	if IsDefault(name) {
		return ModelLookup{Status: StatusValid, Model: name}
	}
	available, err := v.AvailableModels(ctx, true)
	if err != nil {
		return ModelLookup{Status: StatusUnreachable, Model: name, Err: err}
	}
	for _, m := range available {
		if m == name {
			return ModelLookup{Status: StatusValid, Model: name}
		}
	}
	return ModelLookup{Status: StatusNotFound, Model: name, Available: available}
}

// Validate returns true for "", "default" and available models. An absent
// model yields *ModelNotFoundError; a failed fetch *ModelConnectionError.
func (v *Validator) Validate(ctx context.Context, name string) (bool, error) {
	res := v.Lookup(ctx, name)
	switch res.Status {
	case StatusValid:
		return true, nil
	case StatusNotFound:
		return false, &ModelNotFoundError{Model: name, Available: res.Available}
	default:
		return false, res.Err
	}
}

func (v *Validator) cached() ([]string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entry == nil || v.now().Sub(v.entry.fetchedAt) >= v.ttl {
		return nil, false
	}
	return sortedKeys(v.entry.models), true
}

func (v *Validator) fetch(ctx context.Context) ([]string, error) {
	if v.lister == nil {
		return nil, &ModelConnectionError{Err: errors.New("no model lister configured")}
	}

	start := v.now()
	ids, err := resilience.Call(ctx, v.retrier, v.breaker, "list models", v.lister.ListModels)
	if err != nil {
		v.logger.Warn("model list fetch failed", telemetry.EventField(telemetry.EventModelFetch), zap.Error(err))
		return nil, &ModelConnectionError{Err: err}
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	v.mu.Lock()
	v.entry = &cacheEntry{models: set, fetchedAt: v.now()}
	v.mu.Unlock()

	v.logger.Debug("model list refreshed",
		telemetry.EventField(telemetry.EventModelFetch),
		zap.Int("count", len(set)),
		telemetry.DurationField(v.now().Sub(start)),
	)
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package cli

import (
	"context"
	"fmt"

	"github.com/lydakis/mcpxagent/internal/agent"
	"github.com/lydakis/mcpxagent/internal/backend"
	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/discovery"
	"github.com/lydakis/mcpxagent/internal/mcppool"
	"github.com/lydakis/mcpxagent/internal/models"
	"github.com/lydakis/mcpxagent/internal/resilience"
)

// components are the collaborators built from settings for one command.
type components struct {
	discovery *discovery.Discovery
	backend   backend.Backend
	validator *models.Validator
	resolver  *models.Resolver
	manager   *mcppool.Manager
	retrier   *resilience.Retrier
	breaker   *resilience.Breaker
}

func (a *app) discovery() *discovery.Discovery {
	return discovery.New(a.settings.Registry, a.logger)
}

func (a *app) retrier() *resilience.Retrier {
	s := a.settings.Retry
	return resilience.NewRetrier(resilience.Policy{
		Attempts:  s.Attempts,
		BaseDelay: s.BaseDelay,
		MaxDelay:  s.MaxDelay,
	}, a.logger, resilience.WithRetryIf(retryable))
}

// retryable skips retries for failures that will repeat, such as a backend
// rejecting the request or an unknown model.
func retryable(err error) bool {
	return resilience.DefaultRetryable(err) && backend.Retryable(err)
}

func (a *app) breaker(name string) *resilience.Breaker {
	s := a.settings.Breaker
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:             name,
		FailureThreshold: s.FailureThreshold,
		RecoveryTimeout:  s.RecoveryTimeout,
	}, a.logger, resilience.WithStateChange(func(name string, _, to resilience.State) {
		a.metrics.SetBreakerState(name, int(to))
	}))
}

func (a *app) clientConfig() backend.ClientConfig {
	s := a.settings.Backend
	return backend.ClientConfig{
		BaseURL: s.BaseURL,
		APIKey:  s.APIKey,
		Headers: s.Headers,
		Timeout: s.Timeout,
	}
}

func (a *app) backend(ctx context.Context) (backend.Backend, error) {
	cfg := a.clientConfig()
	responses := backend.NewResponsesClient(cfg)
	switch a.settings.Backend.Kind {
	case config.BackendChat:
		cm, err := backend.NewOpenAIChatModel(ctx, cfg, a.settings.Model)
		if err != nil {
			return nil, err
		}
		return backend.NewChatModelBackend(cm, responses), nil
	default:
		return responses, nil
	}
}

// build wires every component from the loaded settings.
func (a *app) build(ctx context.Context) (*components, error) {
	be, err := a.backend(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	retrier := a.retrier()
	validator := models.NewValidator(be, a.logger,
		models.WithTTL(a.settings.ModelCacheTTL),
		models.WithResilience(retrier, a.breaker("models")),
		models.WithMetrics(a.metrics),
	)
	disc := a.discovery()

	return &components{
		discovery: disc,
		backend:   be,
		validator: validator,
		resolver:  models.NewResolver(validator, backend.NewCatalogClient(a.clientConfig()), a.logger),
		manager: mcppool.NewManager(disc, a.logger, mcppool.Options{
			Separator: a.settings.ToolSeparator,
			Retrier:   retrier,
			Metrics:   a.metrics,
		}),
		retrier: retrier,
		breaker: a.breaker("backend"),
	}, nil
}

func (c *components) runner(a *app) *agent.Runner {
	return agent.NewRunner(agent.Options{
		Backend:      c.backend,
		Manager:      c.manager,
		Servers:      c.discovery,
		Validator:    c.validator,
		Resolver:     c.resolver,
		Retrier:      c.retrier,
		Breaker:      c.breaker,
		Metrics:      a.metrics,
		AutoFallback: a.settings.AutoFallback,
		TaskType:     a.settings.TaskType,
		RoundTimeout: a.settings.RoundTimeout,
	}, a.logger)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/lydakis/mcpxagent/internal/paths"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. MCPXAGENT_MODEL.
const EnvPrefix = "MCPXAGENT"

// Backend kinds.
const (
	BackendResponses = "responses"
	BackendChat      = "chat"
)

// Settings controls the agent runtime. Values come from defaults, an
// optional settings file, MCPXAGENT_* environment variables and bound flags,
// in increasing precedence.
type Settings struct {
	Registry      string          `mapstructure:"registry"`
	Backend       BackendSettings `mapstructure:"backend"`
	Model         string          `mapstructure:"model"`
	AutoFallback  bool            `mapstructure:"auto_fallback"`
	TaskType      string          `mapstructure:"task_type"`
	MaxRounds     int             `mapstructure:"max_rounds"`
	MaxTokens     int             `mapstructure:"max_tokens"`
	RoundTimeout  time.Duration   `mapstructure:"round_timeout"`
	ModelCacheTTL time.Duration   `mapstructure:"model_cache_ttl"`
	Retry         RetrySettings   `mapstructure:"retry"`
	Breaker       BreakerSettings `mapstructure:"breaker"`
	ToolSeparator string          `mapstructure:"tool_separator"`
}

// BackendSettings selects and configures the completion backend.
type BackendSettings struct {
	Kind    string            `mapstructure:"kind"`
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// RetrySettings configures retry-with-backoff for outbound calls.
type RetrySettings struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
}

// BreakerSettings configures circuit breakers around outbound calls.
type BreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry", paths.RegistryFile())
	v.SetDefault("backend.kind", BackendResponses)
	v.SetDefault("backend.base_url", "http://localhost:1234/v1")
	v.SetDefault("backend.api_key", "lm-studio")
	v.SetDefault("backend.timeout", 120*time.Second)
	v.SetDefault("model", "")
	v.SetDefault("auto_fallback", false)
	v.SetDefault("task_type", "general")
	v.SetDefault("max_rounds", 5)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("round_timeout", time.Duration(0))
	v.SetDefault("model_cache_ttl", 60*time.Second)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 30*time.Second)
	v.SetDefault("tool_separator", "__")
}

// LoadSettings reads the settings file (if any) into v and decodes Settings.
// An empty path means the default settings file; a missing default file is
// not an error, a missing explicit file is.
func LoadSettings(v *viper.Viper, path string) (*Settings, error) {
	if v == nil {
		v = NewViper()
	}

	explicit := path != ""
	if !explicit {
		path = paths.SettingsFile()
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading settings %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	if err := ValidateSettings(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ValidateSettings checks numeric bounds and enumerations.
func ValidateSettings(s *Settings) error {
	if s == nil {
		return nil
	}

	var errs []error
	switch s.Backend.Kind {
	case BackendResponses, BackendChat:
	default:
		errs = append(errs, fmt.Errorf("backend.kind: must be %q or %q, got %q", BackendResponses, BackendChat, s.Backend.Kind))
	}
	if strings.TrimSpace(s.Backend.BaseURL) == "" {
		errs = append(errs, errors.New("backend.base_url: must not be empty"))
	}
	if s.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("max_rounds: must be > 0, got %d", s.MaxRounds))
	}
	if s.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens: must be > 0, got %d", s.MaxTokens))
	}
	if s.RoundTimeout < 0 {
		errs = append(errs, fmt.Errorf("round_timeout: must be >= 0, got %s", s.RoundTimeout))
	}
	if s.ModelCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("model_cache_ttl: must be >= 0, got %s", s.ModelCacheTTL))
	}
	if s.Retry.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.attempts: must be > 0, got %d", s.Retry.Attempts))
	}
	if s.Retry.MaxDelay < s.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay: must be >= retry.base_delay (%s), got %s", s.Retry.BaseDelay, s.Retry.MaxDelay))
	}
	if s.Breaker.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("breaker.failure_threshold: must be > 0, got %d", s.Breaker.FailureThreshold))
	}
	if s.ToolSeparator == "" {
		errs = append(errs, errors.New("tool_separator: must not be empty"))
	}
	return errors.Join(errs...)
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/mcpxagent/internal/httpheaders"
	"github.com/lydakis/mcpxagent/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Format identifies the syntax of a registry file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseError reports a registry file that exists but cannot be decoded.
type ParseError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s registry %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads the default registry file.
// If the file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.RegistryFile())
}

// LoadFrom reads and parses a registry at the given path.
// A missing file yields an empty Config.
func LoadFrom(path string) (*Config, error) {
	cfg, err := ReadFrom(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{Servers: make(map[string]ServerConfig)}, nil
	}
	return cfg, err
}

// ReadFrom reads and parses a registry at the given path.
// Unlike LoadFrom, a missing file is reported as an error wrapping
// fs.ErrNotExist, and malformed content as *ParseError.
func ReadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("reading registry %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	format := DetectFormat(path, data)
	cfg, err := decode(format, data)
	if err != nil {
		return nil, &ParseError{Path: path, Format: format, Err: err}
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	expandConfigEnvVars(cfg)
	return cfg, nil
}

// DetectFormat picks a decoder from the file extension, falling back to
// sniffing the first non-space byte for extensionless files.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatTOML
}

func decode(format Format, data []byte) (*Config, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	default:
		return decodeTOML(data)
	}
}

type tomlDocument struct {
	Servers    map[string]ServerConfig        `toml:"servers"`
	MCPServers map[string]codexMCPServerEntry `toml:"mcp_servers"`
}

// codexMCPServerEntry mirrors the [mcp_servers.<name>] tables used by Codex.
type codexMCPServerEntry struct {
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`
	EnvVars []string          `toml:"env_vars"`

	URL               string            `toml:"url"`
	BearerTokenEnvVar string            `toml:"bearer_token_env_var"`
	HTTPHeaders       map[string]string `toml:"http_headers"`

	Enabled *bool `toml:"enabled"`
}

func decodeTOML(data []byte) (*Config, error) {
	var doc tomlDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cfg := &Config{Servers: make(map[string]ServerConfig, len(doc.Servers)+len(doc.MCPServers))}
	for name, srv := range doc.Servers {
		cfg.Servers[name] = srv
	}
	for name, entry := range doc.MCPServers {
		if _, exists := cfg.Servers[name]; exists {
			continue
		}
		cfg.Servers[name] = entry.toServerConfig()
	}
	return cfg, nil
}

func (e codexMCPServerEntry) toServerConfig() ServerConfig {
	env := copyStringMap(e.Env)
	for _, key := range e.EnvVars {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := env[key]; exists {
			continue
		}
		if val, ok := os.LookupEnv(key); ok {
			if env == nil {
				env = make(map[string]string)
			}
			env[key] = val
		}
	}

	headers := copyStringMap(e.HTTPHeaders)
	if tokenEnv := strings.TrimSpace(e.BearerTokenEnvVar); tokenEnv != "" {
		if headers == nil {
			headers = make(map[string]string)
		}
		if !httpheaders.Has(headers, "Authorization") {
			headers["Authorization"] = "Bearer ${" + tokenEnv + "}"
		}
	}

	return ServerConfig{
		Command:  e.Command,
		Args:     e.Args,
		Env:      env,
		URL:      e.URL,
		Headers:  headers,
		Disabled: e.Enabled != nil && !*e.Enabled,
	}
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}
	for name, srv := range cfg.Servers {
		cfg.Servers[name] = expandServerEnvVars(srv)
	}
}

// ExpandServerForCurrentEnv returns a copy of server with ${ENV_VAR}
// placeholders expanded from the current process environment.
func ExpandServerForCurrentEnv(server ServerConfig) ServerConfig {
	return expandServerEnvVars(CloneServerConfig(server))
}

func expandServerEnvVars(srv ServerConfig) ServerConfig {
	srv.Command = expandEnvVars(srv.Command)
	srv.URL = expandEnvVars(srv.URL)

	for i := range srv.Args {
		srv.Args[i] = expandEnvVars(srv.Args[i])
	}
	for k, v := range srv.Env {
		srv.Env[k] = expandEnvVars(v)
	}
	for k, v := range srv.Headers {
		srv.Headers[k] = expandEnvVars(v)
	}

	return srv
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}

func copyStringMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

package config

// Config is a parsed tool-server registry.
type Config struct {
	Servers map[string]ServerConfig `toml:"servers" json:"servers" yaml:"servers"`
}

// ServerConfig describes how to reach a single MCP tool server.
type ServerConfig struct {
	// Stdio transport
	Command string            `toml:"command" json:"command" yaml:"command"`
	Args    []string          `toml:"args" json:"args" yaml:"args"`
	Env     map[string]string `toml:"env" json:"env" yaml:"env"`

	// HTTP transport
	URL     string            `toml:"url" json:"url" yaml:"url"`
	Headers map[string]string `toml:"headers" json:"headers" yaml:"headers"`

	Disabled    bool   `toml:"disabled" json:"disabled" yaml:"disabled"`
	Description string `toml:"description" json:"description" yaml:"description"`
}

// IsStdio returns true if the server uses stdio transport.
func (s ServerConfig) IsStdio() bool {
	return s.Command != ""
}

// IsHTTP returns true if the server uses HTTP transport.
func (s ServerConfig) IsHTTP() bool {
	return s.URL != ""
}

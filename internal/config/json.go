package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// mcpServerEntry is the per-server shape shared by mcpServers JSON documents
// (Claude Desktop, Cursor, Cline, LM Studio) and their YAML equivalents.
type mcpServerEntry struct {
	Command     string            `json:"command" yaml:"command"`
	Args        []string          `json:"args" yaml:"args"`
	Env         map[string]string `json:"env" yaml:"env"`
	URL         string            `json:"url" yaml:"url"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	Disabled    bool              `json:"disabled" yaml:"disabled"`
	Description string            `json:"description" yaml:"description"`
}

func (e mcpServerEntry) toServerConfig() ServerConfig {
	return ServerConfig{
		Command:     e.Command,
		Args:        e.Args,
		Env:         e.Env,
		URL:         e.URL,
		Headers:     e.Headers,
		Disabled:    e.Disabled,
		Description: e.Description,
	}
}

// decodeJSON accepts {"mcpServers": {...}}, {"servers": {...}} or a bare
// object keyed by server name.
func decodeJSON(data []byte) (*Config, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	body := data
	for _, key := range []string{"mcpServers", "servers"} {
		if raw, ok := top[key]; ok {
			body = raw
			break
		}
	}

	var entries map[string]mcpServerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding server entries: %w", err)
	}
	return fromEntries(entries), nil
}

type yamlDocument struct {
	Servers    map[string]mcpServerEntry `yaml:"servers"`
	MCPServers map[string]mcpServerEntry `yaml:"mcpServers"`
}

func decodeYAML(data []byte) (*Config, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cfg := fromEntries(doc.Servers)
	for name, entry := range doc.MCPServers {
		if _, exists := cfg.Servers[name]; exists {
			continue
		}
		cfg.Servers[name] = entry.toServerConfig()
	}
	return cfg, nil
}

func fromEntries(entries map[string]mcpServerEntry) *Config {
	cfg := &Config{Servers: make(map[string]ServerConfig, len(entries))}
	for name, entry := range entries {
		cfg.Servers[name] = entry.toServerConfig()
	}
	return cfg
}

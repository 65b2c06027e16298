package config

import (
	"strings"
	"testing"
)

func TestValidateAcceptsValidStdioAndHTTPServers(t *testing.T) {
	cfg := &Config{
		Servers: map[string]ServerConfig{
			"filesystem": {
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
			},
			"apify": {
				URL: "https://mcp.apify.com",
			},
		},
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateRejectsMissingAndMixedTransports(t *testing.T) {
	cfg := &Config{
		Servers: map[string]ServerConfig{
			"missing": {},
			"mixed": {
				Command: "npx",
				URL:     "https://example.com/mcp",
			},
		},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "servers.missing: missing transport") {
		t.Fatalf("Validate() error = %q, want missing transport message", msg)
	}
	if !strings.Contains(msg, "servers.mixed: configure either command") {
		t.Fatalf("Validate() error = %q, want mixed transport message", msg)
	}
}

func TestValidateRejectsInvalidURLNameAndEnv(t *testing.T) {
	cfg := &Config{
		Servers: map[string]ServerConfig{
			"bad": {
				URL: "://bad-url",
			},
			"has.dot": {
				Command: "npx",
				Env:     map[string]string{"A=B": "x"},
			},
		},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "servers.bad.url: invalid URL") {
		t.Fatalf("Validate() error = %q, want invalid URL message", msg)
	}
	if !strings.Contains(msg, "servers.has.dot: name may only contain") {
		t.Fatalf("Validate() error = %q, want invalid name message", msg)
	}
	if !strings.Contains(msg, "servers.has.dot.env: invalid variable name") {
		t.Fatalf("Validate() error = %q, want invalid env message", msg)
	}
}

func TestCloneServerConfigIsDeep(t *testing.T) {
	orig := ServerConfig{
		Command: "npx",
		Args:    []string{"a"},
		Env:     map[string]string{"K": "v"},
	}
	cloned := CloneServerConfig(orig)
	cloned.Args[0] = "b"
	cloned.Env["K"] = "w"

	if orig.Args[0] != "a" || orig.Env["K"] != "v" {
		t.Fatalf("CloneServerConfig() shares state with original: %#v", orig)
	}
}

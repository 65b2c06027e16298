package mcppool

import (
	"context"
	"errors"
	"testing"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/resilience"
)

func lookPathExcept(missing ...string) lookPathFunc {
	return func(bin string) (string, error) {
		for _, m := range missing {
			if bin == m {
				return "", errors.New("not found")
			}
		}
		return "/usr/bin/" + bin, nil
	}
}

func TestCheckRuntimeMissingCommand(t *testing.T) {
	err := checkRuntime(config.ServerConfig{
		Command: "npx",
		Args:    []string{"-y", "@modelcontextprotocol/server-github"},
	}, lookPathExcept("npx"))

	var missing *MissingRuntimeError
	if !errors.As(err, &missing) || missing.Command != "npx" {
		t.Fatalf("checkRuntime() error = %v, want missing npx", err)
	}
}

func TestCheckRuntimeFollowsEnvWrapper(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "assignment", args: []string{"UV_CACHE_DIR=/tmp/uv", "uvx", "mcp-server"}, want: "uvx"},
		{name: "split string", args: []string{"-S", "FOO=1 uvx mcp-server"}, want: "uvx"},
		{name: "split string inline", args: []string{"--split-string=uvx mcp-server"}, want: "uvx"},
		{name: "unset option", args: []string{"-u", "HOME", "'uvx'", "mcp-server"}, want: "uvx"},
		{name: "double dash", args: []string{"-i", "--", "A=1", "uvx"}, want: "uvx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRuntime(config.ServerConfig{Command: "/usr/bin/env", Args: tt.args}, lookPathExcept("uvx"))
			var missing *MissingRuntimeError
			if !errors.As(err, &missing) || missing.Command != tt.want {
				t.Fatalf("checkRuntime() error = %v, want missing %q", err, tt.want)
			}
		})
	}
}

func TestCheckRuntimeSkipsHTTPAndPresentCommands(t *testing.T) {
	if err := checkRuntime(config.ServerConfig{URL: "http://127.0.0.1:1/mcp"}, lookPathExcept("anything")); err != nil {
		t.Fatalf("checkRuntime(http) error = %v, want nil", err)
	}
	if err := checkRuntime(config.ServerConfig{Command: "/usr/bin/env", Args: []string{"A=1"}}, lookPathExcept()); err != nil {
		t.Fatalf("checkRuntime(env without target) error = %v, want nil", err)
	}
}

func TestConnectStdioMissingRuntimeIsPermanent(t *testing.T) {
	_, err := connectStdio(context.Background(), config.ServerConfig{Command: "mcpxagent-this-command-does-not-exist"})
	if !resilience.IsPermanent(err) {
		t.Fatalf("connectStdio() error = %v, want permanent", err)
	}
	var missing *MissingRuntimeError
	if !errors.As(err, &missing) {
		t.Fatalf("connectStdio() error = %v, want MissingRuntimeError", err)
	}
}

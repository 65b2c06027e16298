package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeRegistry(t *testing.T, name, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	return path
}

func TestReadFromTOMLExpandsEnvValuesAfterParsing(t *testing.T) {
	t.Setenv("API_TOKEN", `abc"def`)

	path := writeRegistry(t, "servers.toml", `
[servers.github]
url = "https://example.com/mcp"
headers = { Authorization = "Bearer ${API_TOKEN}" }

[servers.fs]
command = "npx"
args = ["-y", "@modelcontextprotocol/server-filesystem"]
disabled = true
`)

	cfg, err := ReadFrom(path)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}

	got := cfg.Servers["github"].Headers["Authorization"]
	want := `Bearer abc"def`
	if got != want {
		t.Fatalf("Authorization header = %q, want %q", got, want)
	}
	if !cfg.Servers["fs"].Disabled {
		t.Fatal("servers.fs.disabled = false, want true")
	}
}

func TestReadFromTOMLImportsCodexTables(t *testing.T) {
	t.Setenv("GH_TOKEN", "secret")

	path := writeRegistry(t, "config.toml", `
[mcp_servers.github]
url = "https://example.com/mcp"
bearer_token_env_var = "GH_TOKEN"

[mcp_servers.off]
command = "off-server"
enabled = false
`)

	cfg, err := ReadFrom(path)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got := cfg.Servers["github"].Headers["Authorization"]; got != "Bearer secret" {
		t.Fatalf("Authorization header = %q, want %q", got, "Bearer secret")
	}
	if !cfg.Servers["off"].Disabled {
		t.Fatal("servers.off.disabled = false, want true for enabled = false")
	}
}

func TestReadFromJSONAcceptsMCPServersAndBareObjects(t *testing.T) {
	wrapped := writeRegistry(t, "mcp.json", `{
  "mcpServers": {
    "fetch": {"command": "uvx", "args": ["mcp-server-fetch"], "env": {"A": "1"}}
  }
}`)
	bare := writeRegistry(t, "bare.json", `{
  "fetch": {"command": "uvx", "args": ["mcp-server-fetch"], "disabled": true}
}`)

	cfg, err := ReadFrom(wrapped)
	if err != nil {
		t.Fatalf("ReadFrom(wrapped) error = %v", err)
	}
	if got := cfg.Servers["fetch"]; got.Command != "uvx" || got.Env["A"] != "1" {
		t.Fatalf("wrapped fetch = %#v", got)
	}

	cfg, err = ReadFrom(bare)
	if err != nil {
		t.Fatalf("ReadFrom(bare) error = %v", err)
	}
	if got := cfg.Servers["fetch"]; got.Command != "uvx" || !got.Disabled {
		t.Fatalf("bare fetch = %#v", got)
	}
}

func TestReadFromYAML(t *testing.T) {
	path := writeRegistry(t, "servers.yaml", `
servers:
  memory:
    command: npx
    args: ["-y", "@modelcontextprotocol/server-memory"]
mcpServers:
  time:
    command: uvx
    args: ["mcp-server-time"]
`)

	cfg, err := ReadFrom(path)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("len(servers) = %d, want 2", len(cfg.Servers))
	}
	if cfg.Servers["time"].Command != "uvx" {
		t.Fatalf("servers.time.command = %q, want uvx", cfg.Servers["time"].Command)
	}
}

func TestReadFromMissingFileWrapsNotExist(t *testing.T) {
	_, err := ReadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFrom() error = %v, want fs.ErrNotExist", err)
	}

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v, want nil", err)
	}
	if len(cfg.Servers) != 0 {
		t.Fatalf("LoadFrom() servers = %v, want empty", cfg.Servers)
	}
}

func TestReadFromMalformedFileReturnsParseError(t *testing.T) {
	path := writeRegistry(t, "broken.json", `{"mcpServers": {`)

	_, err := ReadFrom(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("ReadFrom() error = %v, want *ParseError", err)
	}
	if perr.Format != FormatJSON {
		t.Fatalf("ParseError.Format = %q, want %q", perr.Format, FormatJSON)
	}
}

func TestDetectFormatSniffsExtensionlessJSON(t *testing.T) {
	if got := DetectFormat("registry", []byte("  {}")); got != FormatJSON {
		t.Fatalf("DetectFormat() = %q, want json", got)
	}
	if got := DetectFormat("registry", []byte("[servers]")); got != FormatTOML {
		t.Fatalf("DetectFormat() = %q, want toml", got)
	}
}

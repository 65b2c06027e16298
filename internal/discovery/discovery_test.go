package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
[servers.filesystem]
command = "npx"
args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]

[servers.fetch]
command = "uvx"
args = ["mcp-server-fetch"]
env = { LOG_LEVEL = "debug" }

[servers.legacy]
command = "legacy-server"
disabled = true
`

func writeRegistry(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestDiscovery(t *testing.T, content string) (*Discovery, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.toml")
	writeRegistry(t, path, content)
	return New(path, nil), path
}

func TestListServers(t *testing.T) {
	d, _ := newTestDiscovery(t, sampleRegistry)

	enabled, err := d.ListServers(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "filesystem"}, enabled)

	all, err := d.ListServers(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "filesystem", "legacy"}, all)
}

func TestDescriptorsIdempotentAndHotReloaded(t *testing.T) {
	d, path := newTestDiscovery(t, sampleRegistry)

	first, err := d.Descriptors()
	require.NoError(t, err)
	second, err := d.Descriptors()
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("descriptors changed between reads (-first +second):\n%s", diff)
	}

	writeRegistry(t, path, `
[servers.only]
command = "only-server"
args = ["--stdio"]
`)

	third, err := d.Descriptors()
	require.NoError(t, err)
	want := []Descriptor{{
		Name:         "only",
		ServerConfig: config.ServerConfig{Command: "only-server", Args: []string{"--stdio"}},
	}}
	if diff := cmp.Diff(want, third); diff != "" {
		t.Fatalf("descriptors after edit mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupStatuses(t *testing.T) {
	d, _ := newTestDiscovery(t, sampleRegistry)

	res := d.Lookup("fetch")
	require.True(t, res.OK())
	assert.Equal(t, "uvx", res.Server.Command)
	assert.Equal(t, map[string]string{"LOG_LEVEL": "debug"}, res.Server.Env)

	assert.Equal(t, StatusNotFound, d.Lookup("nope").Status)
	assert.Equal(t, StatusDisabled, d.Lookup("legacy").Status)
}

func TestConnectionParamsErrors(t *testing.T) {
	d, _ := newTestDiscovery(t, sampleRegistry)

	srv, err := d.ConnectionParams("filesystem")
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, srv.Args)

	_, err = d.ConnectionParams("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.ConnectionParams("legacy")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConnectionParamsRejectsInvalidEntry(t *testing.T) {
	d, _ := newTestDiscovery(t, `
[servers.broken]
args = ["x"]
`)

	_, err := d.ConnectionParams("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing transport")
}

func TestMissingRegistry(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "absent.toml"), nil)

	names, err := d.ListServers(true)
	require.NoError(t, err)
	assert.Empty(t, names)

	infos, err := d.AllInfo()
	require.NoError(t, err)
	assert.Empty(t, infos)

	res := d.Lookup("fetch")
	assert.Equal(t, StatusFileMissing, res.Status)

	_, err = d.ConnectionParams("fetch")
	assert.ErrorIs(t, err, ErrFileMissing)
}

func TestParseErrorIsPerCall(t *testing.T) {
	d, path := newTestDiscovery(t, "[servers.bad\ncommand = ")

	_, err := d.ListServers(false)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, path, parseErr.Path)
	assert.Equal(t, StatusParseError, d.Lookup("bad").Status)

	writeRegistry(t, path, sampleRegistry)
	names, err := d.ListServers(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "filesystem"}, names)
}

func TestAllInfoDescriptions(t *testing.T) {
	d, _ := newTestDiscovery(t, sampleRegistry+`
[servers.remote]
url = "https://mcp.example.com/mcp"

[servers.custom]
command = "python3"
args = ["server.py"]
description = "Local scratch tools"
`)

	infos, err := d.AllInfo()
	require.NoError(t, err)

	got := make(map[string]string, len(infos))
	for _, info := range infos {
		got[info.Name] = info.Summary
	}
	want := map[string]string{
		"custom":     "Local scratch tools",
		"fetch":      "mcp-server-fetch (via uvx)",
		"filesystem": "@modelcontextprotocol/server-filesystem (via npx)",
		"legacy":     "MCP server: legacy-server",
		"remote":     "HTTP MCP server at mcp.example.com",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("descriptions mismatch (-want +got):\n%s", diff)
	}
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-y", "@modelcontextprotocol/server-github@latest"}, "@modelcontextprotocol/server-github"},
		{[]string{"mcp-server-git==0.6.2", "--repository", "."}, "mcp-server-git"},
		{[]string{"-m", "mcp_server_time"}, "mcp_server_time"},
		{[]string{"./dist/index.js"}, ""},
		{[]string{"run", "/opt/tools/server.py"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PackageName(tt.args), "args=%v", tt.args)
	}
}

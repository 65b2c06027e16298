package paths

import (
	"os"
	"path/filepath"
)

const appName = "mcpxagent"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the config directory ($XDG_CONFIG_HOME/mcpxagent).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory ($XDG_STATE_HOME/mcpxagent).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RegistryFile returns the default tool-server registry path.
func RegistryFile() string {
	return filepath.Join(ConfigDir(), "servers.toml")
}

// SettingsFile returns the default agent settings path.
func SettingsFile() string {
	return filepath.Join(ConfigDir(), "settings.yaml")
}

// MetricsFile returns the default location for the metrics textfile.
func MetricsFile() string {
	return filepath.Join(StateDir(), "metrics.prom")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

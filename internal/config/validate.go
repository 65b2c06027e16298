package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Server names become prefixes of function names sent to the completion
// backend, which only accepts this alphabet.
var serverNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks registry invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	for _, name := range SortedNames(cfg) {
		errs = append(errs, validateServer(name, cfg.Servers[name])...)
	}

	return errors.Join(errs...)
}

// ValidateServer checks a single registry entry.
func ValidateServer(name string, srv ServerConfig) error {
	return errors.Join(validateServer(name, srv)...)
}

// SortedNames returns registry server names in lexical order.
func SortedNames(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloneServerConfig returns a deep copy of srv.
func CloneServerConfig(srv ServerConfig) ServerConfig {
	cloned := srv
	cloned.Args = append([]string(nil), srv.Args...)
	cloned.Env = cloneStringMap(srv.Env)
	cloned.Headers = cloneStringMap(srv.Headers)
	return cloned
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validateServer(name string, srv ServerConfig) []error {
	var errs []error

	if !serverNameRe.MatchString(name) {
		errs = append(errs, fmt.Errorf("servers.%s: name may only contain letters, digits, '_' and '-'", name))
	}

	hasCommand := strings.TrimSpace(srv.Command) != ""
	hasURL := strings.TrimSpace(srv.URL) != ""

	switch {
	case hasCommand && hasURL:
		errs = append(errs, fmt.Errorf("servers.%s: configure either command (stdio) or url (http), not both", name))
	case !hasCommand && !hasURL:
		errs = append(errs, fmt.Errorf("servers.%s: missing transport, set command (stdio) or url (http)", name))
	}

	if hasURL {
		if _, err := url.ParseRequestURI(srv.URL); err != nil {
			errs = append(errs, fmt.Errorf("servers.%s.url: invalid URL %q: %w", name, srv.URL, err))
		}
	}

	for k := range srv.Env {
		if strings.TrimSpace(k) == "" || strings.Contains(k, "=") {
			errs = append(errs, fmt.Errorf("servers.%s.env: invalid variable name %q", name, k))
		}
	}

	return errs
}

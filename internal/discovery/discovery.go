// Package discovery reads the tool-server registry. Every call re-reads the
// backing file so edits take effect without a restart.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("server not found in registry")
	ErrDisabled    = errors.New("server is disabled")
	ErrFileMissing = errors.New("registry file not found")
)

// ParseError reports a registry file that exists but cannot be decoded.
type ParseError = config.ParseError

// Status tags the outcome of a Lookup.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusDisabled
	StatusFileMissing
	StatusParseError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusDisabled:
		return "disabled"
	case StatusFileMissing:
		return "file_missing"
	case StatusParseError:
		return "parse_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the tagged outcome of looking up one server.
type Result struct {
	Status Status
	Name   string
	Server config.ServerConfig // set for StatusOK and StatusDisabled
	Err    error               // underlying error for StatusFileMissing and StatusParseError
}

// OK reports whether the server can be connected to.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// AsError converts a non-OK result into the package's error values.
func (r Result) AsError() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusNotFound:
		return fmt.Errorf("%q: %w", r.Name, ErrNotFound)
	case StatusDisabled:
		return fmt.Errorf("%q: %w", r.Name, ErrDisabled)
	default:
		return r.Err
	}
}

// Descriptor is one registry entry.
type Descriptor struct {
	Name string
	config.ServerConfig
}

// Info is a descriptor plus a human-readable description.
type Info struct {
	Descriptor
	Summary string
}

// Discovery reads a registry file. It holds no parsed state.
type Discovery struct {
	path   string
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) *Discovery {
	return &Discovery{
		path:   path,
		logger: telemetry.OrNop(logger).Named("discovery"),
	}
}

// Path returns the registry file path.
func (d *Discovery) Path() string {
	return d.path
}

// ListServers returns registry server names in lexical order. A missing
// registry yields no servers.
func (d *Discovery) ListServers(includeDisabled bool) ([]string, error) {
	descriptors, err := d.Descriptors()
	if err != nil {
		if errors.Is(err, ErrFileMissing) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		if desc.Disabled && !includeDisabled {
			continue
		}
		names = append(names, desc.Name)
	}
	return names, nil
}

// Descriptors returns every registry entry, sorted by name.
func (d *Discovery) Descriptors() ([]Descriptor, error) {
	cfg, err := d.read()
	if err != nil {
		return nil, err
	}

	out := make([]Descriptor, 0, len(cfg.Servers))
	for _, name := range config.SortedNames(cfg) {
		out = append(out, Descriptor{Name: name, ServerConfig: cfg.Servers[name]})
	}
	return out, nil
}

// Lookup resolves one server without using errors for expected outcomes.
func (d *Discovery) Lookup(name string) Result {
	cfg, err := d.read()
	if err != nil {
		status := StatusParseError
		if errors.Is(err, ErrFileMissing) {
			status = StatusFileMissing
		}
		return Result{Status: status, Name: name, Err: err}
	}

	srv, ok := cfg.Servers[name]
	if !ok {
		return Result{Status: StatusNotFound, Name: name}
	}
	if srv.Disabled {
		return Result{Status: StatusDisabled, Name: name, Server: srv}
	}
	return Result{Status: StatusOK, Name: name, Server: srv}
}

// ConnectionParams returns the launch parameters for an enabled server.
func (d *Discovery) ConnectionParams(name string) (config.ServerConfig, error) {
	res := d.Lookup(name)
	if err := res.AsError(); err != nil {
		return config.ServerConfig{}, err
	}
	if err := config.ValidateServer(name, res.Server); err != nil {
		return config.ServerConfig{}, fmt.Errorf("invalid registry entry: %w", err)
	}
	return res.Server, nil
}

// AllInfo returns every server, disabled ones included, with a
// description. A missing registry yields no servers.
func (d *Discovery) AllInfo() ([]Info, error) {
	descriptors, err := d.Descriptors()
	if err != nil {
		if errors.Is(err, ErrFileMissing) {
			return []Info{}, nil
		}
		return nil, err
	}

	out := make([]Info, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, Info{Descriptor: desc, Summary: Describe(desc.ServerConfig)})
	}
	return out, nil
}

func (d *Discovery) read() (*config.Config, error) {
	cfg, err := config.ReadFrom(d.path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", d.path, ErrFileMissing)
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		d.logger.Warn("registry parse failed", zap.String("path", d.path), zap.Error(err))
	}
	return nil, err
}

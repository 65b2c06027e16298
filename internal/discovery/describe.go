package discovery

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lydakis/mcpxagent/internal/config"
)

var (
	scopedPackageRe = regexp.MustCompile(`^@[A-Za-z0-9][\w.-]*/[A-Za-z0-9][\w.-]*(@[\w.^~<>=*-]+)?$`)
	plainPackageRe  = regexp.MustCompile(`^[A-Za-z][\w.]*(-[\w.]+)+(@[\w.^~<>=*-]+|==[\w.]+)?$`)
	scriptExtRe     = regexp.MustCompile(`\.(js|mjs|cjs|ts|py|sh|exe)$`)
)

// Describe derives a one-line description for a registry entry. An explicit
// description wins; otherwise the first package-like argument is used.
func Describe(srv config.ServerConfig) string {
	if desc := strings.TrimSpace(srv.Description); desc != "" {
		return desc
	}

	if srv.IsHTTP() {
		if u, err := url.Parse(srv.URL); err == nil && u.Host != "" {
			return "HTTP MCP server at " + u.Host
		}
		return "HTTP MCP server"
	}

	launcher := filepath.Base(srv.Command)
	if pkg := PackageName(srv.Args); pkg != "" {
		return fmt.Sprintf("%s (via %s)", pkg, launcher)
	}
	if launcher == "" || launcher == "." {
		return "MCP server"
	}
	return "MCP server: " + strings.Join(append([]string{launcher}, srv.Args...), " ")
}

// PackageName returns the first argument that looks like an npm or PyPI
// package name, without its version suffix.
func PackageName(args []string) string {
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" || strings.HasPrefix(arg, "-") || scriptExtRe.MatchString(arg) {
			continue
		}
		switch {
		case scopedPackageRe.MatchString(arg):
			return stripVersion(arg, true)
		case plainPackageRe.MatchString(arg):
			return stripVersion(arg, false)
		case strings.Contains(strings.ToLower(arg), "mcp") && !strings.ContainsAny(arg, `/\`):
			return stripVersion(arg, false)
		}
	}
	return ""
}

func stripVersion(pkg string, scoped bool) string {
	if i := strings.Index(pkg, "=="); i > 0 {
		return pkg[:i]
	}
	at := strings.LastIndex(pkg, "@")
	if scoped && at == 0 {
		return pkg
	}
	if at > 0 {
		return pkg[:at]
	}
	return pkg
}

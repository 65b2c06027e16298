package mcppool

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lydakis/mcpxagent/internal/config"
)

// MissingRuntimeError reports a stdio server whose launcher is not on PATH.
type MissingRuntimeError struct {
	Command string
}

func (e *MissingRuntimeError) Error() string {
	return fmt.Sprintf("required runtime %q not found in PATH", e.Command)
}

type lookPathFunc func(file string) (string, error)

// CheckRuntime verifies that a stdio server's command, and the program an
// env(1) wrapper would exec, can be found. HTTP servers always pass.
func CheckRuntime(scfg config.ServerConfig) error {
	return checkRuntime(scfg, exec.LookPath)
}

func checkRuntime(scfg config.ServerConfig, lookPath lookPathFunc) error {
	if !scfg.IsStdio() {
		return nil
	}
	command := strings.TrimSpace(scfg.Command)
	if command == "" {
		return nil
	}
	if _, err := lookPath(command); err != nil {
		return &MissingRuntimeError{Command: command}
	}
	if filepath.Base(command) != "env" {
		return nil
	}
	if wrapped := envTarget(scfg.Args); wrapped != "" {
		if _, err := lookPath(wrapped); err != nil {
			return &MissingRuntimeError{Command: wrapped}
		}
	}
	return nil
}

// envTarget returns the program env(1) would run for args, skipping
// options and NAME=value assignments.
func envTarget(args []string) string {
	for i := 0; i < len(args); i++ {
		tok := strings.TrimSpace(args[i])
		switch {
		case tok == "":
		case tok == "--":
			return envTarget(args[i+1:])
		case tok == "-S" || tok == "--split-string":
			if i+1 >= len(args) {
				return ""
			}
			i++
			if target := envTarget(strings.Fields(args[i])); target != "" {
				return target
			}
		case strings.HasPrefix(tok, "-S="), strings.HasPrefix(tok, "--split-string="):
			_, value, _ := strings.Cut(tok, "=")
			if target := envTarget(strings.Fields(value)); target != "" {
				return target
			}
		case tok == "-u" || tok == "--unset" || tok == "-C" || tok == "--chdir":
			i++
		case strings.HasPrefix(tok, "-"):
		case strings.Index(tok, "=") > 0:
		default:
			return unquote(tok)
		}
	}
	return ""
}

func unquote(tok string) string {
	if len(tok) >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[len(tok)-1] == tok[0] {
		return tok[1 : len(tok)-1]
	}
	return tok
}

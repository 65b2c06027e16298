package mcppool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/resilience"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// closeGrace bounds how long a stdio server may take to exit after its
// stdin is closed before its process group is signalled.
var closeGrace = 3 * time.Second

func connectStdio(ctx context.Context, scfg config.ServerConfig) (*connection, error) {
	if err := CheckRuntime(scfg); err != nil {
		return nil, resilience.Permanent(err)
	}

	env := make([]string, 0, len(scfg.Env))
	for k, v := range scfg.Env {
		env = append(env, k+"="+v)
	}

	var cmd *exec.Cmd
	c, err := mcpclient.NewStdioMCPClientWithOptions(scfg.Command, env, scfg.Args,
		transport.WithCommandFunc(func(_ context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			cmd = exec.Command(command, args...)
			cmd.Env = append(os.Environ(), env...)
			setProcessGroup(cmd)
			return cmd, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stdio client: %w", err)
	}

	closeFn := func() error {
		return closeStdio(c.Close, cmd)
	}

	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		closeFn() //nolint:errcheck
		return nil, fmt.Errorf("initializing: %w", err)
	}

	return newConnection(c, closeFn), nil
}

// closeStdio closes the client and makes sure the server's process group,
// including any grandchildren launched by npx/uvx wrappers, is gone.
func closeStdio(closeClient func() error, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- closeClient() }()

	select {
	case err := <-done:
		terminateProcessGroup(cmd, closeGrace)
		return err
	case <-time.After(closeGrace):
		terminateProcessGroup(cmd, closeGrace)
		select {
		case err := <-done:
			return err
		case <-time.After(closeGrace):
			return fmt.Errorf("stdio server did not exit after termination")
		}
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/lydakis/mcpxagent/internal/agent"
	"github.com/spf13/cobra"
)

type runOptions struct {
	servers []string
	all     bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] TASK...",
		Short: "Run a task against one, several or all tool servers",
		Long: "Run a task against tool servers until the model answers or the round budget runs out.\n" +
			"With one --server, tools keep their names; with several or --all they are prefixed by server.\n" +
			"Without TASK arguments, the task is read from piped stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := readTask(args, a.stdin)
			if err != nil {
				return usageError(err)
			}
			if opts.all == (len(opts.servers) > 0) {
				return usageError(errors.New("pass --server at least once, or --all"))
			}

			c, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			runner := c.runner(a)

			s := a.settings
			var result string
			switch {
			case opts.all:
				result = runner.RunAutoDiscover(cmd.Context(), task, s.MaxRounds, s.MaxTokens, s.Model)
			case len(opts.servers) == 1:
				result = runner.RunSingleServer(cmd.Context(), opts.servers[0], task, s.MaxRounds, s.MaxTokens, s.Model)
			default:
				result = runner.RunMultiServer(cmd.Context(), opts.servers, task, s.MaxRounds, s.MaxTokens, s.Model)
			}

			fmt.Fprintln(a.stdout, result)
			switch {
			case strings.HasPrefix(result, agent.ErrorPrefix):
				a.exitCode = ExitFailure
			case strings.HasPrefix(result, agent.IncompletePrefix):
				a.exitCode = ExitIncomplete
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.servers, "server", "s", nil, "tool server to use (repeatable)")
	f.BoolVar(&opts.all, "all", false, "use every enabled server in the registry")
	f.Int("max-rounds", 0, "maximum agent rounds (default 5)")
	f.Int("max-tokens", 0, "maximum output tokens per turn (default 4096)")
	f.Bool("auto-fallback", false, "substitute the closest available model when the requested one is missing")
	f.String("task-type", "", "task hint for model fallback: general, coding or reasoning")
	f.Duration("round-timeout", 0, "deadline for each round, 0 disables it")
	settingFlag(f, "max-rounds", "max_rounds")
	settingFlag(f, "max-tokens", "max_tokens")
	settingFlag(f, "auto-fallback", "auto_fallback")
	settingFlag(f, "task-type", "task_type")
	settingFlag(f, "round-timeout", "round_timeout")

	return cmd
}

func readTask(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok && stdinIsTTY(f) {
		return "", errors.New("missing TASK")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading task from stdin: %w", err)
	}
	task := strings.TrimSpace(string(data))
	if task == "" {
		return "", errors.New("missing TASK")
	}
	return task, nil
}

func stdinIsTTY(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return true
	}
	return info.Mode()&fs.ModeCharDevice != 0
}

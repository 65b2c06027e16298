// Package cli implements the mcpxagent command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsageErr   = 2
	ExitInternal   = 3
	ExitIncomplete = 4
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageError(err error) error {
	return &exitError{code: ExitUsageErr, err: err}
}

// app is the state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	v        *viper.Viper
	flags    globalFlags
	settings *config.Settings
	logger   *zap.Logger

	promRegistry *prometheus.Registry
	metrics      telemetry.Metrics

	exitCode int
}

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	return execute(context.Background(), args, rootStdin, rootStdout, rootStderr)
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		stdout:  stdout,
		stderr:  stderr,
		stdin:   stdin,
		v:       config.NewViper(),
		logger:  zap.NewNop(),
		metrics: telemetry.NopMetrics{},
	}

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, cancel := signalAwareContext(ctx)
	defer cancel()

	err := root.ExecuteContext(ctx)
	if ferr := a.finish(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		fmt.Fprintf(stderr, "mcpxagent: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return ExitInternal
	}
	return a.exitCode
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcpxagent",
		Short:         "Autonomous tool-use agent over MCP servers",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bindSettingFlags(a.v, cmd.Flags())
			return a.setup()
		},
	}
	root.SetVersionTemplate("mcpxagent {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.settingsFile, "settings", "", "settings file (default $XDG_CONFIG_HOME/mcpxagent/settings.yaml)")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "console", "log format: console or json")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.BoolVar(&a.flags.jsonOutput, "json", false, "output JSON")
	pf.String("registry", "", "tool server registry file")
	pf.String("backend-url", "", "completion backend base URL")
	pf.String("backend-kind", "", "completion backend kind: responses or chat")
	pf.String("model", "", "model to use (empty or \"default\" lets the backend pick)")
	settingFlag(pf, "registry", "registry")
	settingFlag(pf, "backend-url", "backend.base_url")
	settingFlag(pf, "backend-kind", "backend.kind")
	settingFlag(pf, "model", "model")

	root.AddCommand(
		newRunCmd(a),
		newServersCmd(a),
		newToolsCmd(a),
		newModelsCmd(a),
	)
	return root
}

// setup loads settings and builds the logger and metrics. It runs before
// every subcommand.
func (a *app) setup() error {
	settings, err := config.LoadSettings(a.v, a.flags.settingsFile)
	if err != nil {
		return usageError(err)
	}
	a.settings = settings

	logger, err := telemetry.NewLogger(telemetry.LoggerOptions{
		Level:  a.flags.logLevel,
		Format: a.flags.logFormat,
		Output: a.stderr,
	})
	if err != nil {
		return usageError(err)
	}
	a.logger = logger

	if a.flags.metricsFile != "" {
		a.promRegistry = prometheus.NewRegistry()
		a.metrics = telemetry.NewPrometheusMetrics(a.promRegistry)
	}
	return nil
}

// finish flushes logs and writes the metrics file.
func (a *app) finish() error {
	_ = a.logger.Sync()
	if a.promRegistry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.flags.metricsFile, a.promRegistry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func (a *app) outputMode() outputMode {
	return outputModeFor(a.flags.jsonOutput)
}

const settingKeyAnnotation = "mcpxagent_setting"

// settingFlag marks flag name as the override for a settings key. Only the
// flags of the command being run are bound, so subcommands may share keys.
func settingFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, settingKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotating flag %s: %v", name, err))
	}
}

func bindSettingFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[settingKeyAnnotation]
		if len(keys) == 0 {
			return
		}
		_ = v.BindPFlag(keys[0], f)
	})
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

package cli

import (
	"errors"
	"fmt"

	"github.com/lydakis/mcpxagent/internal/mcppool"
	"github.com/spf13/cobra"
)

func newToolsCmd(a *app) *cobra.Command {
	var (
		all     bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "tools [SERVER...]",
		Short: "List the tools the model would see",
		Long: "List the tools the model would see for the given servers.\n" +
			"One server shows native names; several or --all show qualified names.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return usageError(errors.New("pass SERVER names, or --all"))
			}

			d := a.discovery()
			servers := args
			if all {
				names, err := d.ListServers(false)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					return errors.New("no enabled tool servers found in registry")
				}
				servers = names
			}

			manager := mcppool.NewManager(d, a.logger, mcppool.Options{
				Separator: a.settings.ToolSeparator,
				Retrier:   a.retrier(),
				Metrics:   a.metrics,
			})

			var (
				ts  *mcppool.Toolset
				err error
			)
			if len(servers) == 1 && !all {
				ts, err = manager.OpenSingle(cmd.Context(), servers[0])
			} else {
				ts, err = manager.OpenMulti(cmd.Context(), servers)
			}
			if err != nil {
				return err
			}
			defer ts.Close() //nolint:errcheck

			for _, ferr := range ts.Failures() {
				fmt.Fprintf(a.stderr, "mcpxagent: warning: %v\n", ferr)
			}
			return writeToolList(a.stdout, toolListEntries(ts.Tools(), verbose), a.outputMode())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "use every enabled server in the registry")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show full tool descriptions")
	return cmd
}

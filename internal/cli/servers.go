package cli

import (
	"fmt"
	"strings"

	"github.com/lydakis/mcpxagent/internal/discovery"
	"github.com/lydakis/mcpxagent/internal/mcppool"
	"github.com/lydakis/mcpxagent/internal/paths"
	"github.com/lydakis/mcpxagent/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServersCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List tool servers in the registry",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			names, err := a.discovery().ListServers(all)
			if err != nil {
				return err
			}
			if a.outputMode().isJSON() {
				if names == nil {
					names = []string{}
				}
				return writeJSON(a.stdout, names)
			}
			if len(names) == 0 {
				fmt.Fprintln(a.stdout, "No MCP servers configured.")
				fmt.Fprintf(a.stdout, "Create a registry file at %s\n", paths.RegistryFile())
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled servers")

	cmd.AddCommand(newServersInfoCmd(a), newServersWatchCmd(a))
	return cmd
}

type serverInfoEntry struct {
	Name        string   `json:"name"`
	Transport   string   `json:"transport"`
	Command     string   `json:"command,omitempty"`
	Args        []string `json:"args,omitempty"`
	URL         string   `json:"url,omitempty"`
	Disabled    bool     `json:"disabled"`
	Description string   `json:"description"`
	Problem     string   `json:"problem,omitempty"`
}

func newServersInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info [NAME...]",
		Short: "Describe registry servers",
		RunE: func(_ *cobra.Command, args []string) error {
			d := a.discovery()
			for _, name := range args {
				if res := d.Lookup(name); !res.OK() {
					return usageError(res.AsError())
				}
			}

			infos, err := d.AllInfo()
			if err != nil {
				return err
			}
			entries := serverInfoEntries(infos, args)

			if a.outputMode().isJSON() {
				return writeJSON(a.stdout, entries)
			}
			for _, e := range entries {
				line := e.Name + "\t" + e.Description
				if e.Disabled {
					line += " (disabled)"
				}
				if e.Problem != "" {
					line += " (" + e.Problem + ")"
				}
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}
}

func serverInfoEntries(infos []discovery.Info, only []string) []serverInfoEntry {
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}

	entries := make([]serverInfoEntry, 0, len(infos))
	for _, info := range infos {
		if len(want) > 0 && !want[info.Name] {
			continue
		}
		e := serverInfoEntry{
			Name:        info.Name,
			Transport:   "stdio",
			Command:     info.Command,
			Args:        info.Args,
			URL:         info.URL,
			Disabled:    info.Disabled,
			Description: info.Summary,
		}
		if info.IsHTTP() {
			e.Transport = "http"
		}
		if err := mcppool.CheckRuntime(info.ServerConfig); err != nil {
			e.Problem = err.Error()
		}
		entries = append(entries, e)
	}
	return entries
}

func newServersWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the enabled servers whenever the registry changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := a.discovery()
			names, err := d.ListServers(false)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, strings.Join(names, " "))

			return d.Watch(cmd.Context(), func(names []string, err error) {
				if err != nil {
					a.logger.Warn("registry reload failed",
						telemetry.EventField(telemetry.EventRegistryChange),
						zap.Error(err),
					)
					return
				}
				fmt.Fprintln(a.stdout, strings.Join(names, " "))
			})
		},
	}
}

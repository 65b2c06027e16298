package cli

import (
	"fmt"
	"strings"

	"github.com/lydakis/mcpxagent/internal/models"
	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models the completion backend can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			available, err := c.validator.AvailableModels(cmd.Context(), !refresh)
			if err != nil {
				return err
			}
			if a.outputMode().isJSON() {
				return writeJSON(a.stdout, available)
			}
			for _, m := range available {
				fmt.Fprintln(a.stdout, m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the model cache")

	cmd.AddCommand(newModelsResolveCmd(a))
	return cmd
}

type resolutionOutput struct {
	Requested    string               `json:"requested"`
	Model        string               `json:"model"`
	Status       models.ResolveStatus `json:"status"`
	Alternatives []alternativeOutput  `json:"alternatives,omitempty"`
}

type alternativeOutput struct {
	Model             string   `json:"model"`
	DisplayName       string   `json:"display_name,omitempty"`
	Score             int      `json:"score"`
	Reasons           []string `json:"reasons,omitempty"`
	TrainedForToolUse bool     `json:"trained_for_tool_use"`
	SizeBytes         *int64   `json:"size_bytes,omitempty"`
}

func newModelsResolveCmd(a *app) *cobra.Command {
	var max int

	cmd := &cobra.Command{
		Use:   "resolve MODEL",
		Short: "Check a model and rank substitutes if it is unavailable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.resolver.Resolve(cmd.Context(), args[0], a.settings.AutoFallback, a.settings.TaskType)
			if err != nil {
				return err
			}

			out := resolutionOutput{Requested: res.Requested, Model: res.Model, Status: res.Status}
			for i, alt := range res.Alternatives {
				if max > 0 && i == max {
					break
				}
				out.Alternatives = append(out.Alternatives, alternativeOutput{
					Model:             alt.ModelKey,
					DisplayName:       alt.DisplayName,
					Score:             alt.Score,
					Reasons:           alt.Reasons,
					TrainedForToolUse: alt.TrainedForToolUse,
					SizeBytes:         alt.SizeBytes,
				})
			}

			if a.outputMode().isJSON() {
				return writeJSON(a.stdout, out)
			}
			fmt.Fprintf(a.stdout, "%s\t%s\n", out.Status, out.Model)
			for _, alt := range out.Alternatives {
				fmt.Fprintf(a.stdout, "  %d\t%s\t%s\n", alt.Score, alt.Model, strings.Join(alt.Reasons, "; "))
			}
			if res.Status == models.StatusUnavailable {
				a.exitCode = ExitFailure
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 5, "maximum alternatives to show, 0 for all")
	cmd.Flags().Bool("auto-fallback", false, "report the best alternative as the resolved model")
	cmd.Flags().String("task-type", "", "task hint: general, coding or reasoning")
	settingFlag(cmd.Flags(), "auto-fallback", "auto_fallback")
	settingFlag(cmd.Flags(), "task-type", "task_type")
	return cmd
}

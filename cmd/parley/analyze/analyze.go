// Package analyzecmder provides the analyze command.
package analyzecmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/cliui"
)

const analyzeLongDesc string = `Break a request down into structured requirements.

Asks the completion provider for a summary, a category, the essential and
optional requirements, and any budget, deadline, location or capacity the
request mentions. Nothing is stored.

Examples:
  parley analyze "Need a quiet venue for 30 people next Friday, under 500 EUR"
  parley analyze --json "Looking for a bike repair this week"`

const analyzeShortDesc string = "Analyze a request before broadcasting it"

func NewAnalyzeCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "analyze <request text>",
		Short: analyzeShortDesc,
		Long:  analyzeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := boot.Context(cmd)
			a, _, err := boot.Open(ctx, cmd, boot.EngineFlags)
			if err != nil {
				return err
			}
			defer a.Close()

			var analysis *analyzer.Analysis
			err = cliui.Step(cmd.ErrOrStderr(), "Analyzing", func() error {
				var aerr error
				analysis, aerr = a.Analyzer.Analyze(ctx, strings.Join(args, " "))
				return aerr
			})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analysis)
			}
			PrintAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the analysis as JSON")
	boot.AddEngineFlags(cmd)
	return cmd
}

// PrintAnalysis renders an analysis for the terminal.
func PrintAnalysis(w io.Writer, an *analyzer.Analysis) {
	row := func(key, value string) {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-13s", key)), cliui.ValueStyle.Render(value))
	}

	row("Summary", an.Summary)
	row("Category", an.Category)
	if len(an.Requirements.Essential) > 0 {
		row("Essential", strings.Join(an.Requirements.Essential, ", "))
	}
	if len(an.Requirements.Optional) > 0 {
		row("Optional", strings.Join(an.Requirements.Optional, ", "))
	}

	c := an.Constraints
	if c.Budget != nil {
		row("Budget", fmt.Sprintf("%.2f", *c.Budget))
	}
	if c.Deadline != nil {
		row("Deadline", *c.Deadline)
	}
	if c.Location != nil {
		row("Location", *c.Location)
	}
	if c.Capacity != nil {
		row("Capacity", fmt.Sprintf("%d", *c.Capacity))
	}
	if len(an.Tags) > 0 {
		row("Tags", strings.Join(an.Tags, ", "))
	}

	if an.ClarificationNeeded {
		fmt.Fprintf(w, "\n  %s\n", cliui.WarnStyle.Render("The request may need clarifying:"))
		for _, q := range an.Questions {
			fmt.Fprintf(w, "    %s %s\n", cliui.DimStyle.Render("?"), q)
		}
	}
}

// Package summarycmder provides the summary command.
package summarycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
)

type summaryCommander struct {
	generate bool
	raw      bool
}

const summaryLongDesc string = `Show the summary of a request's negotiations.

Prints the stored summary. When the request has none yet, or --generate is
set, a new summary is produced from the conversations and stored.

Examples:
  parley summary 4b1c0e2a-...
  parley summary --generate 4b1c0e2a-...
  parley summary --raw 4b1c0e2a-... > summary.md`

const summaryShortDesc string = "Show or generate a request summary"

func NewSummaryCmd() *cobra.Command {
	cmder := &summaryCommander{}

	cmd := &cobra.Command{
		Use:   "summary <request-id>",
		Short: summaryShortDesc,
		Long:  summaryLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&cmder.generate, "generate", "g", false, "Generate a new summary even when one is stored")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without rendering")
	boot.AddEngineFlags(cmd)

	return cmd
}

func (c *summaryCommander) run(cmd *cobra.Command, requestID string) error {
	ctx := boot.Context(cmd)

	a, _, err := boot.Open(ctx, cmd, boot.EngineFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}

	text := req.Summary
	if text == "" || c.generate {
		err = cliui.Step(cmd.ErrOrStderr(), "Summarizing", func() error {
			var serr error
			text, serr = a.Summaries.Summarize(ctx, requestID)
			return serr
		})
		if err != nil {
			return err
		}
	}

	return c.print(cmd, text)
}

func (c *summaryCommander) print(cmd *cobra.Command, text string) error {
	if c.raw {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	rendered, err := cliui.RenderMarkdown(text)
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

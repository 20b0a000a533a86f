// Package rankcmder provides the rank command.
package rankcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/matching"
)

type rankCommander struct {
	quick   bool
	jsonOut bool
}

const rankLongDesc string = `Rank the peers of a negotiated request by how well their replies meet it.

The request is analyzed once, then every conversation in which the peer
replied is scored from 0 to 100 by the completion provider. With --quick the
offers are scored by keyword overlap instead, with one model call in total.

Examples:
  parley rank 4b1c0e2a-...
  parley rank --quick --json 4b1c0e2a-...`

const rankShortDesc string = "Rank the offers made for a request"

func NewRankCmd() *cobra.Command {
	cmder := &rankCommander{}

	cmd := &cobra.Command{
		Use:   "rank <request-id>",
		Short: rankShortDesc,
		Long:  rankLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&cmder.quick, "quick", false, "Score by keyword overlap without evaluating each offer")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the ranking as JSON")
	boot.AddEngineFlags(cmd)
	return cmd
}

func (c *rankCommander) run(cmd *cobra.Command, requestID string) error {
	ctx := boot.Context(cmd)
	a, _, err := boot.Open(ctx, cmd, boot.EngineFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	var ranking *matching.Ranking
	err = cliui.Step(cmd.ErrOrStderr(), "Ranking offers", func() error {
		var rerr error
		ranking, rerr = a.Matches.Rank(ctx, requestID, c.quick)
		return rerr
	})
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ranking)
	}
	PrintRanking(cmd.OutOrStdout(), ranking)
	return nil
}

// PrintRanking renders a ranking best match first, followed by the band
// counts and the requirement coverage.
func PrintRanking(w io.Writer, r *matching.Ranking) {
	if len(r.Matches) == 0 {
		fmt.Fprintln(w, cliui.StepStyle.Render("  no offers to rank"))
	}
	for i, m := range r.Matches {
		fmt.Fprintf(w, "%2d. %s %s %s\n",
			i+1,
			cliui.PeerStyle.Render(m.PeerName),
			cliui.NameStyle.Render(fmt.Sprintf("%3.0f", m.Score)),
			cliui.StepStyle.Render(m.ConversationID),
		)
		fmt.Fprintf(w, "    %s\n", m.Reason)
		if b := m.Breakdown; b != nil {
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(fmt.Sprintf(
				"relevance %.0f · availability %.0f · value %.0f · fit %.0f",
				b.Relevance, b.Availability, b.Value, b.Fit)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %d high · %d medium · %d low",
		cliui.KeyStyle.Render("Matches"), r.High, r.Medium, r.Low)
	if r.Skipped > 0 {
		fmt.Fprintf(w, " · %s", cliui.WarnStyle.Render(fmt.Sprintf("%d not evaluated", r.Skipped)))
	}
	fmt.Fprintln(w)
	if len(r.Coverage.Fulfilled) > 0 {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Covered"), strings.Join(r.Coverage.Fulfilled, ", "))
	}
	if len(r.Coverage.Unfulfilled) > 0 {
		fmt.Fprintf(w, "  %s %s\n", cliui.WarnStyle.Render("Missing"), strings.Join(r.Coverage.Unfulfilled, ", "))
	}
}

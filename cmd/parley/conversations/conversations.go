// Package conversationscmder provides the commands that inspect and steer a
// request's conversations after a broadcast.
package conversationscmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
)

type conversationsCommander struct {
	full    bool
	jsonOut bool
}

const conversationsLongDesc string = `List the conversations of a request.

Shows each contacted peer with the conversation's status and turn count.
Use --full to print every transcript, or --json for machine-readable output.

Examples:
  parley conversations 4b1c0e2a-...
  parley conversations --full 4b1c0e2a-...`

const conversationsShortDesc string = "List a request's conversations"

func NewConversationsCmd() *cobra.Command {
	cmder := &conversationsCommander{}

	cmd := &cobra.Command{
		Use:     "conversations <request-id>",
		Aliases: []string{"convs"},
		Short:   conversationsShortDesc,
		Long:    conversationsLongDesc,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&cmder.full, "full", false, "Print every transcript")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print conversations as JSON")
	boot.AddStoreFlags(cmd)

	return cmd
}

func (c *conversationsCommander) run(cmd *cobra.Command, requestID string) error {
	ctx := boot.Context(cmd)

	store, err := boot.OpenStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	detail, err := store.GetRequestWithConversations(ctx, requestID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("Request:"), cliui.ValueStyle.Render(detail.Content))
	fmt.Fprintf(out, "%s %s\n\n", cliui.KeyStyle.Render("Status:"), cliui.ValueStyle.Render(string(detail.Status)))
	cliui.PrintConversations(out, detail.Conversations, c.full)
	return nil
}

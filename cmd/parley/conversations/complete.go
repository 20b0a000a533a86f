package conversationscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
)

const completeShortDesc string = "Mark a conversation as completed"

func NewCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <conversation-id>",
		Short: completeShortDesc,
		Long:  completeShortDesc + ".\n\nThe transcript is kept as it is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(cmd, args[0])
		},
	}
	boot.AddChatFlags(cmd)
	return cmd
}

func runComplete(cmd *cobra.Command, conversationID string) error {
	ctx := boot.Context(cmd)

	svc, store, err := boot.OpenConversations(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := svc.MarkCompleted(ctx, conversationID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s conversation %s completed\n", cliui.SuccessMark, conversationID)
	return nil
}

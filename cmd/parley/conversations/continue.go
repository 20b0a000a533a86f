package conversationscmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/network"
)

const continueLongDesc string = `Send a message of your own to a conversation's peer.

The message goes to the peer's proxy on the conversation's stored session,
and both the message and the reply are added to the transcript. Nothing is
stored if the proxy cannot be reached.

Examples:
  parley continue 9f3e... "Could you do Saturday morning instead?"`

const continueShortDesc string = "Continue a conversation by hand"

func NewContinueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continue <conversation-id> <message>",
		Short: continueShortDesc,
		Long:  continueLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinue(cmd, args[0], strings.Join(args[1:], " "))
		},
	}
	boot.AddChatFlags(cmd)
	return cmd
}

func runContinue(cmd *cobra.Command, conversationID, message string) error {
	ctx := boot.Context(cmd)

	svc, store, err := boot.OpenConversations(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	peer, err := store.GetUser(ctx, conv.PeerID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reply string
	err = cliui.Step(cmd.ErrOrStderr(), "Waiting for "+peer.DisplayName(), func() error {
		res, cerr := svc.Continue(ctx, conversationID, message)
		if cerr != nil {
			return cerr
		}
		reply = res.Reply
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s: %s\n", cliui.RoleLabel(network.RolePeer, peer.DisplayName()), reply)
	return nil
}

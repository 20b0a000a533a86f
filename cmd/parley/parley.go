// Package parleycmder wires every parley subcommand under the root command.
package parleycmder

import (
	"github.com/spf13/cobra"

	analyzecmder "github.com/papercomputeco/parley/cmd/parley/analyze"
	authcmder "github.com/papercomputeco/parley/cmd/parley/auth"
	broadcastcmder "github.com/papercomputeco/parley/cmd/parley/broadcast"
	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	conversationscmder "github.com/papercomputeco/parley/cmd/parley/conversations"
	initcmder "github.com/papercomputeco/parley/cmd/parley/init"
	memberscmder "github.com/papercomputeco/parley/cmd/parley/members"
	rankcmder "github.com/papercomputeco/parley/cmd/parley/rank"
	requestscmder "github.com/papercomputeco/parley/cmd/parley/requests"
	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	summarycmder "github.com/papercomputeco/parley/cmd/parley/summary"
	versioncmder "github.com/papercomputeco/parley/cmd/version"
)

const parleyLongDesc string = `Parley lets your digital proxy negotiate with your network's proxies.

Post a request once and parley holds a short conversation with up to ten
peers' proxies at the same time, stops each one when it reaches an outcome,
and summarizes who can help.

  parley init                       Create a local .parley/ directory
  parley members add ...            Register a member and their proxy credentials
  parley broadcast --from <id> ...  Negotiate a request with the network
  parley requests                   List posted requests
  parley summary <request-id>       Summarize the negotiations
  parley rank <request-id>          Rank who can help best
  parley serve                      Run the API server`

const parleyShortDesc string = "Parley - proxy-to-proxy negotiation"

func NewParleyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "parley",
		Short:         parleyShortDesc,
		Long:          parleyLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(broadcastcmder.NewBroadcastCmd())
	cmd.AddCommand(summarycmder.NewSummaryCmd())
	cmd.AddCommand(requestscmder.NewRequestsCmd())
	cmd.AddCommand(rankcmder.NewRankCmd())
	cmd.AddCommand(conversationscmder.NewConversationsCmd())
	cmd.AddCommand(conversationscmder.NewContinueCmd())
	cmd.AddCommand(conversationscmder.NewCompleteCmd())
	cmd.AddCommand(memberscmder.NewMembersCmd())
	cmd.AddCommand(analyzecmder.NewAnalyzeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// Package requestscmder provides the requests command for browsing posted
// requests.
package requestscmder

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/storage"
)

const requestsLongDesc string = `List posted requests, newest first.

Each line shows the requester, the request status and how many of its
conversations reached an outcome.

Examples:
  parley requests
  parley requests --user alice --json`

const requestsShortDesc string = "List posted requests"

type requestsCommander struct {
	userID  string
	jsonOut bool
}

func NewRequestsCmd() *cobra.Command {
	cmder := &requestsCommander{}

	cmd := &cobra.Command{
		Use:   "requests",
		Short: requestsShortDesc,
		Long:  requestsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}
	cmd.Flags().StringVar(&cmder.userID, "user", "", "Only list this member's requests")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print requests as JSON")
	boot.AddStoreFlags(cmd)
	return cmd
}

func (c *requestsCommander) run(cmd *cobra.Command) error {
	ctx := boot.Context(cmd)
	store, err := boot.OpenStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	listings, err := store.ListRequests(ctx, c.userID)
	if err != nil {
		return err
	}
	if listings == nil {
		listings = []storage.RequestListing{}
	}

	if c.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	}
	cliui.PrintRequests(cmd.OutOrStdout(), listings)
	return nil
}

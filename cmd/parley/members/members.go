// Package memberscmder provides the members command for listing and
// registering network members.
package memberscmder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/network"
)

const membersLongDesc string = `Manage the members of the network.

Every member is bound to a digital proxy reached with their access token.`

const membersShortDesc string = "Manage network members"

func NewMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: membersShortDesc,
		Long:  membersLongDesc,
	}
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAddCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members with their activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := boot.Context(cmd)
			store, err := boot.OpenStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			members, err := store.ListMembers(ctx)
			if err != nil {
				return err
			}
			if members == nil {
				members = []network.Member{}
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(members)
			}
			cliui.PrintMembers(cmd.OutOrStdout(), members)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print members as JSON")
	boot.AddStoreFlags(cmd)
	return cmd
}

type addCommander struct {
	id           string
	name         string
	avatar       string
	accessToken  string
	refreshToken string
	expiresIn    time.Duration
}

const addLongDesc string = `Register a member or update an existing one.

The access token authenticates as the member against the proxy chat backend.
With a refresh token and --expires-in, the token is rotated automatically
shortly before it expires.

Examples:
  parley members add --id alice --name "Alice" --access-token tok_123
  parley members add --id bob --access-token tok_456 --refresh-token ref_789 --expires-in 1h`

func newAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or update a member",
		Long:  addLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}
	cmd.Flags().StringVar(&cmder.id, "id", "", "Member ID")
	cmd.Flags().StringVar(&cmder.name, "name", "", "Display name")
	cmd.Flags().StringVar(&cmder.avatar, "avatar", "", "Avatar URL")
	cmd.Flags().StringVar(&cmder.accessToken, "access-token", "", "Proxy access token")
	cmd.Flags().StringVar(&cmder.refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().DurationVar(&cmder.expiresIn, "expires-in", 0, "Access token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("access-token")
	boot.AddStoreFlags(cmd)
	return cmd
}

func (c *addCommander) run(cmd *cobra.Command) error {
	if c.expiresIn < 0 {
		return network.Invalid("expires-in", "must not be negative")
	}

	ctx := boot.Context(cmd)
	store, err := boot.OpenStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	user := &network.User{
		ID:           c.id,
		Name:         c.name,
		Avatar:       c.avatar,
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
	}
	if c.expiresIn > 0 {
		user.TokenExpiry = time.Now().Add(c.expiresIn).UTC()
	}
	if err := store.UpsertUser(ctx, user); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s member %s saved\n", cliui.SuccessMark, cliui.NameStyle.Render(user.DisplayName()))
	return nil
}

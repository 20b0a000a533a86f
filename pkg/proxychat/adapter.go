package proxychat

import (
	"context"
	"errors"

	"github.com/papercomputeco/parley/pkg/network"
)

var errNoUser = errors.New("no user")

// CredentialResolver yields a live access token for a user.
type CredentialResolver interface {
	AccessToken(ctx context.Context, user *network.User) (string, error)
}

// Adapter sends turns on behalf of a user, resolving that user's
// credential first.
type Adapter struct {
	client   *Client
	resolver CredentialResolver
}

func NewAdapter(client *Client, resolver CredentialResolver) *Adapter {
	return &Adapter{client: client, resolver: resolver}
}

// SendTurn resolves user's credential and posts text, continuing the session
// identified by token. An empty token starts a new session.
func (a *Adapter) SendTurn(ctx context.Context, user *network.User, text, token string) (Reply, error) {
	if user == nil {
		return Reply{}, &network.AuthError{Err: errNoUser}
	}

	accessToken, err := a.resolver.AccessToken(ctx, user)
	if err != nil {
		return Reply{}, err
	}

	reply, err := a.client.PostTurn(ctx, accessToken, text, token)
	if err != nil {
		var authErr *network.AuthError
		if errors.As(err, &authErr) && authErr.UserID == "" {
			authErr.UserID = user.ID
		}
		return Reply{}, err
	}
	return reply, nil
}

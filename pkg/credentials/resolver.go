package credentials

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/network"
)

// RefreshWindow is how close to expiry a stored token may be before it is
// refreshed instead of used.
const RefreshWindow = 5 * time.Minute

// refreshTimeout bounds one refresh. The refresh is shared by every caller
// waiting on the same user, so it does not follow any one caller's context.
const refreshTimeout = 30 * time.Second

// Refresher trades a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// TokenStore persists rotated tokens for a user.
type TokenStore interface {
	UpdateUserTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
}

// Resolver hands out live proxy access tokens.
type Resolver struct {
	refresher Refresher
	store     TokenStore
	logger    *slog.Logger
	now       func() time.Time
	flights   singleflight.Group

	// rotated holds pairs refreshed by this resolver. Callers keep passing
	// the user record they loaded, which goes stale after a rotation.
	mu      sync.Mutex
	rotated map[string]pair
}

type pair struct {
	access, refresh string
	expiry          time.Time

	// from is the refresh token this pair replaced.
	from string
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Refresher Refresher
	Store     TokenStore
	Logger    *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

func NewResolver(c ResolverConfig) *Resolver {
	r := &Resolver{
		refresher: c.Refresher,
		store:     c.Store,
		logger:    c.Logger,
		now:       c.Now,
		rotated:   make(map[string]pair),
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// AccessToken returns the user's stored token unless it expires within
// RefreshWindow, in which case it is refreshed and persisted first. A token
// without an expiry is used as is.
// Concurrent refreshes for the same user share one backend call.
// Every failure is an *network.AuthError.
func (r *Resolver) AccessToken(ctx context.Context, user *network.User) (string, error) {
	if user == nil {
		return "", &network.AuthError{Err: errors.New("no user")}
	}

	current := r.current(user)
	if current.access != "" && (current.expiry.IsZero() || r.now().Add(RefreshWindow).Before(current.expiry)) {
		return current.access, nil
	}

	if current.refresh == "" || r.refresher == nil {
		return "", &network.AuthError{UserID: user.ID, Err: errors.New("access token expired and cannot be refreshed")}
	}

	v, err, _ := r.flights.Do(user.ID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return r.refresh(rctx, user.ID, current.refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// current returns the newest pair known for user.
func (r *Resolver) current(user *network.User) pair {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.rotated[user.ID]; ok && (p.from == user.RefreshToken || p.expiry.After(user.TokenExpiry)) {
		return p
	}
	return pair{access: user.AccessToken, refresh: user.RefreshToken, expiry: user.TokenExpiry}
}

func (r *Resolver) refresh(ctx context.Context, userID, refreshToken string) (string, error) {
	r.logger.Debug("refreshing proxy access token", "user_id", userID)

	tok, err := r.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		r.logger.Warn("token refresh failed", "user_id", userID, "error", err)
		return "", &network.AuthError{UserID: userID, Err: err}
	}

	next := pair{access: tok.AccessToken, refresh: tok.RefreshToken, expiry: tok.Expiry(r.now()), from: refreshToken}
	if next.refresh == "" {
		next.refresh = refreshToken
	}

	// The backend may already have retired refreshToken, so the new pair is
	// kept even when it cannot be stored.
	r.mu.Lock()
	r.rotated[userID] = next
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpdateUserTokens(ctx, userID, next.access, next.refresh, next.expiry); err != nil {
			r.logger.Warn("rotated token not stored", "user_id", userID, "error", err)
			return "", &network.AuthError{UserID: userID, Err: network.Persistence("update user tokens", err)}
		}
	}

	return next.access, nil
}

// Package inmemory provides a map-backed storage driver for tests and
// throwaway runs.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Driver implements storage.Driver with in-memory maps. Records are copied
// on the way in and out so callers never share state with the store.
type Driver struct {
	mu sync.RWMutex

	users         map[string]*network.User
	requests      map[string]*network.Request
	conversations map[string]*network.Conversation

	now func() time.Time
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		users:         make(map[string]*network.User),
		requests:      make(map[string]*network.Request),
		conversations: make(map[string]*network.Conversation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.Driver = (*Driver)(nil)

func (d *Driver) UpsertUser(_ context.Context, user *network.User) error {
	if user == nil {
		return errors.New("cannot store nil user")
	}
	if user.ID == "" {
		return storage.ErrMissingID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u := *user
	if existing, ok := d.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = d.now()
	}
	d.users[u.ID] = &u
	user.CreatedAt = u.CreatedAt
	return nil
}

func (d *Driver) GetUser(_ context.Context, id string) (*network.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindUser, ID: id}
	}
	out := *u
	return &out, nil
}

func (d *Driver) ListPeers(_ context.Context, excludeID string, limit int) ([]*network.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var peers []*network.User
	for _, u := range d.sortedUsers() {
		if u.ID == excludeID {
			continue
		}
		out := *u
		peers = append(peers, &out)
		if limit > 0 && len(peers) == limit {
			break
		}
	}
	return peers, nil
}

func (d *Driver) UpdateUserTokens(_ context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[userID]
	if !ok {
		return storage.NotFoundError{Kind: storage.KindUser, ID: userID}
	}
	u.AccessToken = accessToken
	u.RefreshToken = refreshToken
	u.TokenExpiry = expiry
	return nil
}

func (d *Driver) ListMembers(_ context.Context) ([]network.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	requests := make(map[string]int)
	for _, r := range d.requests {
		requests[r.UserID]++
	}
	conversations := make(map[string]int)
	for _, c := range d.conversations {
		conversations[c.PeerID]++
	}

	users := d.sortedUsers()
	members := make([]network.Member, 0, len(users))
	for _, u := range users {
		members = append(members, network.Member{
			ID:                u.ID,
			Name:              u.Name,
			Avatar:            u.Avatar,
			RequestCount:      requests[u.ID],
			ConversationCount: conversations[u.ID],
			CreatedAt:         u.CreatedAt,
		})
	}
	return members, nil
}

func (d *Driver) CreateRequest(_ context.Context, req *network.Request) error {
	if req == nil {
		return errors.New("cannot store nil request")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	storage.PrepareRequest(req, d.now())
	r := *req
	d.requests[r.ID] = &r
	return nil
}

func (d *Driver) GetRequest(_ context.Context, id string) (*network.Request, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.requests[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindRequest, ID: id}
	}
	out := *r
	return &out, nil
}

func (d *Driver) ListRequests(_ context.Context, userID string) ([]storage.RequestListing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := make(map[string]int)
	settled := make(map[string]int)
	for _, c := range d.conversations {
		total[c.RequestID]++
		if storage.Settled(c.Status) {
			settled[c.RequestID]++
		}
	}

	listings := []storage.RequestListing{}
	for _, r := range d.requests {
		if userID != "" && r.UserID != userID {
			continue
		}
		l := storage.RequestListing{
			Request:           *r,
			RequesterName:     storage.PeerName(""),
			ConversationCount: total[r.ID],
			SettledCount:      settled[r.ID],
		}
		if u, ok := d.users[r.UserID]; ok {
			l.RequesterName = storage.PeerName(u.Name)
			l.RequesterAvatar = u.Avatar
		}
		listings = append(listings, l)
	}
	slices.SortFunc(listings, func(a, b storage.RequestListing) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return listings, nil
}

func (d *Driver) UpdateRequestStatus(_ context.Context, id string, status network.RequestStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.requests[id]
	if !ok {
		return storage.NotFoundError{Kind: storage.KindRequest, ID: id}
	}
	r.Status = status
	r.UpdatedAt = d.now()
	return nil
}

func (d *Driver) SetRequestSummary(_ context.Context, id, summary string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.requests[id]
	if !ok {
		return storage.NotFoundError{Kind: storage.KindRequest, ID: id}
	}
	r.Summary = summary
	r.Status = network.RequestCompleted
	r.UpdatedAt = d.now()
	return nil
}

func (d *Driver) CreateConversation(_ context.Context, conv *network.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	storage.PrepareConversation(conv, d.now())
	c := *conv
	c.Transcript = conv.Transcript.Clone()
	d.conversations[c.ID] = &c
	return nil
}

func (d *Driver) GetConversation(_ context.Context, id string) (*network.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindConversation, ID: id}
	}
	return cloneConversation(c), nil
}

func (d *Driver) UpdateConversation(_ context.Context, conv *network.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[conv.ID]
	if !ok {
		return storage.NotFoundError{Kind: storage.KindConversation, ID: conv.ID}
	}
	c.Transcript = conv.Transcript.Clone()
	c.RequesterToken = conv.RequesterToken
	c.PeerToken = conv.PeerToken
	c.Status = conv.Status
	c.Reason = conv.Reason
	c.Summary = conv.Summary
	c.UpdatedAt = d.now()
	conv.UpdatedAt = c.UpdatedAt
	return nil
}

func (d *Driver) GetConversationsByRequest(_ context.Context, requestID string) ([]*network.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.conversationsFor(requestID), nil
}

func (d *Driver) GetRequestWithConversations(_ context.Context, requestID string) (*storage.RequestDetail, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.requests[requestID]
	if !ok {
		return nil, storage.NotFoundError{Kind: storage.KindRequest, ID: requestID}
	}

	detail := &storage.RequestDetail{Request: *r}
	for _, c := range d.conversationsFor(requestID) {
		cd := storage.ConversationDetail{Conversation: *c, PeerName: storage.PeerName("")}
		if peer, ok := d.users[c.PeerID]; ok {
			cd.PeerName = storage.PeerName(peer.Name)
			cd.PeerAvatar = peer.Avatar
		}
		detail.Conversations = append(detail.Conversations, cd)
	}
	return detail, nil
}

func (d *Driver) Close() error {
	return nil
}

// conversationsFor must be called with the lock held.
func (d *Driver) conversationsFor(requestID string) []*network.Conversation {
	var out []*network.Conversation
	for _, c := range d.conversations {
		if c.RequestID == requestID {
			out = append(out, cloneConversation(c))
		}
	}
	slices.SortFunc(out, func(a, b *network.Conversation) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// sortedUsers must be called with the lock held.
func (d *Driver) sortedUsers() []*network.User {
	users := make([]*network.User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b *network.User) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return users
}

func cloneConversation(c *network.Conversation) *network.Conversation {
	out := *c
	out.Transcript = c.Transcript.Clone()
	return &out
}

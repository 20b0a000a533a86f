package broadcast

import (
	"context"

	"github.com/papercomputeco/parley/pkg/network"
)

// DefaultPeerLimit caps how many peers one broadcast contacts.
const DefaultPeerLimit = 10

// PeerSelector chooses which peers a request is broadcast to.
type PeerSelector interface {
	SelectPeers(ctx context.Context, requester *network.User) ([]*network.User, error)
}

// PeerLister is the part of storage.Driver the store selector needs.
type PeerLister interface {
	ListPeers(ctx context.Context, excludeID string, limit int) ([]*network.User, error)
}

// StoreSelector picks peers in store order, excluding the requester.
type StoreSelector struct {
	Store PeerLister
	Limit int
}

func (s StoreSelector) SelectPeers(ctx context.Context, requester *network.User) ([]*network.User, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultPeerLimit
	}
	return s.Store.ListPeers(ctx, requester.ID, limit)
}

// boundPool drops the requester, nil entries and repeated peers from the
// selector's choice and caps what is left at limit, keeping selection order.
func boundPool(peers []*network.User, requesterID string, limit int) []*network.User {
	seen := make(map[string]bool, len(peers))
	pool := make([]*network.User, 0, min(len(peers), limit))
	for _, p := range peers {
		if len(pool) == limit {
			break
		}
		if p == nil || p.ID == requesterID || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		pool = append(pool, p)
	}
	return pool
}

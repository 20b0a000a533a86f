package network

// RequesterToken continues the requester-side proxy session of a conversation.
type RequesterToken string

// PeerToken continues the peer-side proxy session of a conversation.
type PeerToken string

// SessionToken is satisfied by exactly the two continuation token types.
// Helpers that take a SessionToken hand back the same type they received, so a
// requester token can never end up in a peer field or the other way round.
type SessionToken interface {
	RequesterToken | PeerToken
}

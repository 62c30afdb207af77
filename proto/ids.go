package proto

import (
	"github.com/cespare/xxhash"
	"github.com/google/uuid"
)

// SessionID identifies a single source's broadcast session. A new session
// begins whenever a source starts streaming; a receiver that sees a higher
// SessionID than the one it is following switches to it (highest-SID-wins).
type SessionID uint64

// ReceiverID identifies a single receiver for the lifetime of its process.
type ReceiverID uint64

// NewSessionID generates a fresh, effectively-unique session identifier.
func NewSessionID() SessionID {
	return SessionID(fold(uuid.New()))
}

// NewReceiverID generates a fresh, effectively-unique receiver identifier.
func NewReceiverID() ReceiverID {
	return ReceiverID(fold(uuid.New()))
}

// fold collapses a 128-bit UUID down to 64 bits. Collisions are possible in
// principle but irrelevant here: IDs only need to disambiguate the small
// number of sessions and receivers alive on one LAN at one time, not serve
// as a global identity scheme.
func fold(id uuid.UUID) uint64 {
	return xxhash.Sum64(id[:])
}

package interfaces

import (
	"context"

	"classync/pkg/types"
)

// SessionStore holds the ephemeral session record per room so that a join can
// resolve a session created by another process.
// FUNCTIONAL DISCOVERY: Records are ephemeral by design; implementations may
// expire them (Redis TTL) and durable history is explicitly out of scope
type SessionStore interface {
	// SaveSession upserts the room's session record.
	SaveSession(ctx context.Context, session *types.SessionData) error

	// GetSessionByRoom returns the room's session record, or
	// ErrSessionNotFound when no session exists for the room.
	GetSessionByRoom(ctx context.Context, roomID string) (*types.SessionData, error)

	// DeleteSession removes the room's session record. Deleting a missing
	// record is a no-op.
	DeleteSession(ctx context.Context, roomID string) error
}

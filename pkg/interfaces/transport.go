package interfaces

import (
	"context"

	"classync/pkg/types"
)

// PresenceEventKind distinguishes the three presence reconciliation events.
type PresenceEventKind string

const (
	PresenceSync  PresenceEventKind = "sync"
	PresenceJoin  PresenceEventKind = "join"
	PresenceLeave PresenceEventKind = "leave"
)

// PresenceEvent is delivered whenever the live participant set of a channel
// changes or is re-synchronized.
type PresenceEvent struct {
	Kind   PresenceEventKind
	Record types.PresenceRecord
}

// BroadcastHandler receives one broadcast envelope.
// FUNCTIONAL DISCOVERY: Handlers run on the channel's dispatch goroutine and
// must not block; slow consumers cause envelope drops, not backpressure
type BroadcastHandler func(envelope *types.Envelope)

// PresenceHandler receives one presence event.
type PresenceHandler func(event PresenceEvent)

// Channel is one subscribed handle onto a room topic.
// ARCHITECTURAL DISCOVERY: Pure capability abstraction without implementation
// details keeps the synchronization engine testable against an in-process
// broker while production runs over Redis pub/sub
type Channel interface {
	// OnBroadcast registers a handler for one broadcast event kind.
	// Registration must happen before Track; handlers are not replaced
	// concurrently with dispatch.
	OnBroadcast(event string, handler BroadcastHandler)

	// OnPresence registers a handler for presence sync/join/leave events.
	OnPresence(handler PresenceHandler)

	// Track publishes this participant's presence record onto the channel.
	// Re-tracking the same presence key overwrites the previous record, so
	// two tabs of one logical user collide with themselves and nobody else.
	Track(ctx context.Context, record types.PresenceRecord) error

	// Send publishes a broadcast envelope to all subscribers.
	// FUNCTIONAL DISCOVERY: At-most-once, fire-and-forget semantics; the
	// transport may redeliver the envelope to the sender itself
	Send(ctx context.Context, envelope *types.Envelope) error

	// PresenceState returns the current presence map keyed by presence key.
	PresenceState(ctx context.Context) (map[string]types.PresenceRecord, error)

	// Release detaches the handle, withdraws any tracked presence and frees
	// resources. Safe to call multiple times.
	Release() error
}

// Transport opens channels onto named topics.
type Transport interface {
	Subscribe(ctx context.Context, topic string) (Channel, error)
}

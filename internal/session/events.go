package session

import (
	"time"

	"classync/pkg/types"
)

// Phase is the lifecycle state machine of one classroom session manager.
// ARCHITECTURAL DISCOVERY: An explicit enum replaces the in-flight boolean
// latches; Creating and Joining cannot coexist and "active while creating"
// is unrepresentable
type Phase int

const (
	PhaseNoSession Phase = iota
	PhaseCreating
	PhaseJoining
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseNoSession:
		return "no-session"
	case PhaseCreating:
		return "creating"
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventSessionCreated EventKind = "session_created"
	EventSessionJoined  EventKind = "session_joined"
	EventSessionLeft    EventKind = "session_left"
)

// Event is emitted exactly once per state transition.
// FUNCTIONAL DISCOVERY: Emitting per transition (not per state observation)
// lets the UI layer own its display-once policy instead of the core tracking
// one-shot toast latches
type Event struct {
	Kind    EventKind
	Session types.SessionData
	At      time.Time
}

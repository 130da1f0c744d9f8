package realtime

import (
	"encoding/json"

	"classync/pkg/types"
)

// ConnState is the engine's connection state machine.
// ARCHITECTURAL DISCOVERY: One explicit enum per engine instance replaces the
// pair of boolean guard flags that could represent impossible combinations
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncState is the shared classroom snapshot every participant converges on.
// Rebuilt from broadcasts and presence events; never persisted.
type SyncState struct {
	WhiteboardData json.RawMessage
	ChatMessages   []types.ChatMessage
	ActiveTab      string
	CurrentSlide   int
	// Participants is a point-in-time roster reconstructed from presence
	// events, not cumulative history
	Participants []types.PresenceRecord
}

func (s *SyncState) clone() SyncState {
	out := SyncState{
		ActiveTab:    s.ActiveTab,
		CurrentSlide: s.CurrentSlide,
	}
	if s.WhiteboardData != nil {
		out.WhiteboardData = make(json.RawMessage, len(s.WhiteboardData))
		copy(out.WhiteboardData, s.WhiteboardData)
	}
	if len(s.ChatMessages) > 0 {
		out.ChatMessages = make([]types.ChatMessage, len(s.ChatMessages))
		copy(out.ChatMessages, s.ChatMessages)
	}
	if len(s.Participants) > 0 {
		out.Participants = make([]types.PresenceRecord, len(s.Participants))
		copy(out.Participants, s.Participants)
	}
	return out
}

package types

import (
	"encoding/json"
	"time"
)

// Role identifies a participant's classroom role.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Broadcast event kinds carried over a room channel.
// ARCHITECTURAL DISCOVERY: Event names defined exactly once so the engine,
// transport implementations and gateway agree on the wire vocabulary
const (
	EventWhiteboardUpdate = "whiteboard_update"
	EventTabChange        = "tab_change"
	EventSlideChange      = "slide_change"
)

// SessionSettings holds the teacher-adjustable knobs of a classroom session.
type SessionSettings struct {
	AllowRecording  bool `json:"allow_recording"`
	MaxParticipants int  `json:"max_participants"`
	IsPublic        bool `json:"is_public"`
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
// FUNCTIONAL DISCOVERY: Pointer fields distinguish "set to zero value" from
// "not provided", which a plain struct merge cannot express
type SettingsPatch struct {
	AllowRecording  *bool `json:"allow_recording,omitempty"`
	MaxParticipants *int  `json:"max_participants,omitempty"`
	IsPublic        *bool `json:"is_public,omitempty"`
}

// DefaultSettings returns the settings applied to a freshly created session.
func DefaultSettings() SessionSettings {
	return SessionSettings{
		AllowRecording:  false,
		MaxParticipants: 10,
		IsPublic:        false,
	}
}

// SessionData describes one ephemeral classroom session.
// FUNCTIONAL DISCOVERY: Participants is the logical roster attributed to the
// session record, distinct from live channel presence which is rebuilt from
// presence events and never persisted
type SessionData struct {
	ID           string          `json:"id"`
	RoomID       string          `json:"room_id"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	IsActive     bool            `json:"is_active"`
	Participants []string        `json:"participants"`
	Settings     SessionSettings `json:"settings"`
}

// HasParticipant reports whether userID is already on the logical roster.
func (s *SessionData) HasParticipant(userID string) bool {
	for _, id := range s.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// PresenceRecord is the metadata tracked for one connected participant.
type PresenceRecord struct {
	UserID   string    `json:"userId"`
	UserRole Role      `json:"userRole"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ChatMessage is one entry of the in-memory classroom chat log.
// Persistence of chat history belongs to an external collaborator; this type
// only keeps the rendering log consistent.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// Envelope wraps one broadcast payload with its sender attribution.
// ARCHITECTURAL DISCOVERY: SenderID lives on the envelope, not inside the
// payload, so echo suppression never needs to decode payload bytes
type Envelope struct {
	Event    string          `json:"event"`
	SenderID string          `json:"sender_id"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

// WhiteboardUpdate is the payload of an EventWhiteboardUpdate broadcast.
// Data is opaque to the core; the lesson player owns its shape.
type WhiteboardUpdate struct {
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"userId"`
}

// TabChange is the payload of an EventTabChange broadcast.
type TabChange struct {
	TabID  string `json:"tabId"`
	UserID string `json:"userId"`
}

// SlideChange is the payload of an EventSlideChange broadcast.
type SlideChange struct {
	SlideNumber int    `json:"slideNumber"`
	UserID      string `json:"userId"`
}

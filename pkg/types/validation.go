package types

import "regexp"

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
// The 1-50 character limit keeps IDs safe for topic names and presence keys.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return identifierRegex.MatchString(userID)
}

// IsValidRoomID checks if a room ID meets format requirements.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 50 {
		return false
	}
	return identifierRegex.MatchString(roomID)
}

// IsValidRole checks if the role is one of the two classroom roles.
func IsValidRole(role Role) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsValidEvent checks if the broadcast event is one of the allowed kinds.
// ARCHITECTURAL DISCOVERY: Explicit validation prevents undefined event
// kinds from entering the dispatch path
func IsValidEvent(event string) bool {
	switch event {
	case EventWhiteboardUpdate, EventTabChange, EventSlideChange:
		return true
	default:
		return false
	}
}

// Validate ensures an envelope is safe to put on the wire.
func (e *Envelope) Validate() error {
	if !IsValidEvent(e.Event) {
		return ErrInvalidEvent
	}
	if !IsValidUserID(e.SenderID) {
		return ErrInvalidUserID
	}
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	// 64KB cap keeps whiteboard payloads from starving the channel
	if len(e.Payload) > 65536 {
		return ErrPayloadTooLarge
	}
	return nil
}

// Validate ensures the session record meets all requirements.
func (s *SessionData) Validate() error {
	if !IsValidRoomID(s.RoomID) {
		return ErrInvalidRoomID
	}
	if !IsValidUserID(s.CreatedBy) {
		return ErrInvalidUserID
	}
	return nil
}

package types

// CanOriginate reports whether a role may originate the given broadcast event.
// ARCHITECTURAL DISCOVERY: Single authorization function consulted by every
// mutator and every inbound handler prevents authority drift as new
// synchronized fields are added
//
// activeTab and currentSlide are teacher-authoritative; whiteboard strokes may
// come from any participant.
func CanOriginate(role Role, event string) bool {
	switch event {
	case EventTabChange, EventSlideChange:
		return role == RoleTeacher
	case EventWhiteboardUpdate:
		return IsValidRole(role)
	default:
		return false
	}
}

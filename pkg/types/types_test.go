package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   bool
	}{
		{"simple", "alice", true},
		{"with underscore and hyphen", "teacher_01-a", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 51), false},
		{"max length", strings.Repeat("a", 50), true},
		{"spaces", "alice smith", false},
		{"special characters", "alice@school", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidUserID(tt.userID))
		})
	}
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleTeacher))
	assert.True(t, IsValidRole(RoleStudent))
	assert.False(t, IsValidRole(Role("admin")))
	assert.False(t, IsValidRole(Role("")))
}

func TestCanOriginate(t *testing.T) {
	tests := []struct {
		name  string
		role  Role
		event string
		want  bool
	}{
		{"teacher tab change", RoleTeacher, EventTabChange, true},
		{"teacher slide change", RoleTeacher, EventSlideChange, true},
		{"teacher whiteboard", RoleTeacher, EventWhiteboardUpdate, true},
		{"student tab change", RoleStudent, EventTabChange, false},
		{"student slide change", RoleStudent, EventSlideChange, false},
		{"student whiteboard", RoleStudent, EventWhiteboardUpdate, true},
		{"unknown role whiteboard", Role("admin"), EventWhiteboardUpdate, false},
		{"unknown event", RoleTeacher, "reboot_everything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanOriginate(tt.role, tt.event))
		})
	}
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		Event:    EventSlideChange,
		SenderID: "teacher1",
		Payload:  json.RawMessage(`{"slideNumber":3,"userId":"teacher1"}`),
	}
	require.NoError(t, valid.Validate())

	badEvent := valid
	badEvent.Event = "not_a_thing"
	assert.ErrorIs(t, badEvent.Validate(), ErrInvalidEvent)

	badSender := valid
	badSender.SenderID = "no spaces allowed"
	assert.ErrorIs(t, badSender.Validate(), ErrInvalidUserID)

	empty := valid
	empty.Payload = nil
	assert.ErrorIs(t, empty.Validate(), ErrEmptyPayload)

	huge := valid
	huge.Payload = json.RawMessage(`"` + strings.Repeat("x", 70000) + `"`)
	assert.ErrorIs(t, huge.Validate(), ErrPayloadTooLarge)
}

func TestSessionDataValidate(t *testing.T) {
	sess := SessionData{RoomID: "room-1", CreatedBy: "teacher1"}
	require.NoError(t, sess.Validate())

	sess.RoomID = ""
	assert.ErrorIs(t, sess.Validate(), ErrInvalidRoomID)

	sess.RoomID = "room-1"
	sess.CreatedBy = "bad id"
	assert.ErrorIs(t, sess.Validate(), ErrInvalidUserID)
}

func TestHasParticipant(t *testing.T) {
	sess := SessionData{Participants: []string{"a", "b"}}
	assert.True(t, sess.HasParticipant("a"))
	assert.False(t, sess.HasParticipant("c"))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.AllowRecording)
	assert.False(t, s.IsPublic)
	assert.Equal(t, 10, s.MaxParticipants)
}

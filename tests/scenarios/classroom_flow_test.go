// Package scenarios exercises a full classroom flow over the in-process
// broker and a shared session store, the way the core packages compose in a
// real deployment.
package scenarios

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classync/internal/initializer"
	"classync/internal/notify"
	"classync/internal/realtime"
	"classync/internal/session"
	"classync/internal/transport"
	"classync/pkg/interfaces"
	"classync/pkg/types"
)

type participant struct {
	sessions *session.Manager
	engine   *realtime.Engine
	init     *initializer.Initializer
}

func newParticipant(t *testing.T, broker interfaces.Transport, store interfaces.SessionStore, logger *logrus.Logger, userID string, role types.Role) *participant {
	t.Helper()
	notifier := notify.NewLogNotifier(logger)

	sessions, err := session.NewManager(store, notifier, logger, "eslroom", userID, role)
	require.NoError(t, err)
	engine, err := realtime.NewEngine(broker, notifier, logger, realtime.Config{
		RoomID:      "eslroom",
		UserID:      userID,
		Role:        role,
		DisplayName: userID,
	})
	require.NoError(t, err)

	return &participant{sessions: sessions, engine: engine}
}

func TestClassroomFlow(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	broker := transport.NewMemoryBroker(logger)
	store := session.NewMemoryStore()
	ctx := context.Background()

	teacher := newParticipant(t, broker, store, logger, "teacher1", types.RoleTeacher)
	student := newParticipant(t, broker, store, logger, "student1", types.RoleStudent)

	// Teacher opens the classroom
	require.NoError(t, teacher.sessions.CreateSession(ctx))
	require.NoError(t, teacher.engine.Connect(ctx))

	sess := teacher.sessions.Current()
	require.NotNil(t, sess)
	assert.True(t, sess.IsActive)
	assert.Equal(t, "teacher1", sess.CreatedBy)

	// Student arrives
	require.NoError(t, student.sessions.JoinSession(ctx))
	require.NoError(t, student.engine.Connect(ctx))

	joined := student.sessions.Current()
	require.NotNil(t, joined)
	assert.Equal(t, sess.ID, joined.ID)
	assert.True(t, joined.HasParticipant("student1"))

	// Both see both in the live roster
	require.Eventually(t, func() bool {
		return len(teacher.engine.Snapshot().Participants) == 2 &&
			len(student.engine.Snapshot().Participants) == 2
	}, time.Second, 10*time.Millisecond)

	// Teacher drives the lesson; the student converges
	teacher.engine.SyncSlideChange(ctx, 4)
	teacher.engine.SyncActiveTab(ctx, "reading")
	teacher.engine.SyncWhiteboard(ctx, json.RawMessage(`{"strokes":["hello"]}`))

	require.Eventually(t, func() bool {
		snap := student.engine.Snapshot()
		return snap.CurrentSlide == 4 &&
			snap.ActiveTab == "reading" &&
			string(snap.WhiteboardData) == `{"strokes":["hello"]}`
	}, time.Second, 10*time.Millisecond)

	// A student cannot steer the class
	student.engine.SyncSlideChange(ctx, 7)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, teacher.engine.Snapshot().CurrentSlide)
	assert.Equal(t, 4, student.engine.Snapshot().CurrentSlide)

	// But the whiteboard is collaborative
	student.engine.SyncWhiteboard(ctx, json.RawMessage(`{"strokes":["hello","reply"]}`))
	require.Eventually(t, func() bool {
		return string(teacher.engine.Snapshot().WhiteboardData) == `{"strokes":["hello","reply"]}`
	}, time.Second, 10*time.Millisecond)

	// Student leaves; the roster and the stored record both shrink
	require.NoError(t, student.sessions.LeaveSession(ctx))
	student.engine.Disconnect()

	require.Eventually(t, func() bool {
		roster := teacher.engine.Snapshot().Participants
		return len(roster) == 1 && roster[0].UserID == "teacher1"
	}, time.Second, 10*time.Millisecond)

	stored, err := store.GetSessionByRoom(ctx, "eslroom")
	require.NoError(t, err)
	assert.False(t, stored.HasParticipant("student1"))

	// Teacher ends the class; the session record is gone
	require.NoError(t, teacher.sessions.LeaveSession(ctx))
	teacher.engine.Disconnect()
	_, err = store.GetSessionByRoom(ctx, "eslroom")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestClassroomEntryViaInitializer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	broker := transport.NewMemoryBroker(logger)
	store := session.NewMemoryStore()
	ctx := context.Background()

	teacher := newParticipant(t, broker, store, logger, "teacher1", types.RoleTeacher)
	teacher.init = initializer.New(
		authFor("teacher1", types.RoleTeacher),
		teacher.sessions, teacher.engine, logger, nil, 0,
	)

	student := newParticipant(t, broker, store, logger, "student1", types.RoleStudent)
	student.init = initializer.New(
		authFor("student1", types.RoleStudent),
		student.sessions, student.engine, logger, nil, 0,
	)

	require.NoError(t, teacher.init.Initialize(ctx))
	require.NoError(t, student.init.Initialize(ctx))

	// Re-mount storms are harmless
	require.NoError(t, teacher.init.Initialize(ctx))
	require.NoError(t, student.init.Initialize(ctx))

	stored, err := store.GetSessionByRoom(ctx, "eslroom")
	require.NoError(t, err)
	assert.Equal(t, "teacher1", stored.CreatedBy)
	assert.True(t, stored.HasParticipant("student1"))

	teacher.init.Shutdown()
	student.init.Shutdown()
	assert.Equal(t, realtime.StateIdle, teacher.engine.State())
}

type staticAuth struct{ principal *interfaces.Principal }

func (a staticAuth) CurrentPrincipal(ctx context.Context) (*interfaces.Principal, error) {
	return a.principal, nil
}

func authFor(userID string, role types.Role) interfaces.AuthProvider {
	return staticAuth{principal: &interfaces.Principal{ID: userID, Role: role, Name: userID}}
}

package realtime

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classync/internal/transport"
	"classync/pkg/interfaces"
	"classync/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordingNotifier captures toasts for assertion.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []interfaces.Notification
}

func (n *recordingNotifier) Notify(notification interfaces.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

// countingTransport wraps a real transport and counts subscriptions.
type countingTransport struct {
	inner      interfaces.Transport
	subscribes atomic.Int32
}

func (t *countingTransport) Subscribe(ctx context.Context, topic string) (interfaces.Channel, error) {
	t.subscribes.Add(1)
	return t.inner.Subscribe(ctx, topic)
}

// stalledTransport never completes a subscribe; it honors ctx cancellation.
type stalledTransport struct{}

func (stalledTransport) Subscribe(ctx context.Context, topic string) (interfaces.Channel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestEngine(t *testing.T, tr interfaces.Transport, userID string, role types.Role) *Engine {
	t.Helper()
	engine, err := NewEngine(tr, &recordingNotifier{}, testLogger(), Config{
		RoomID:      "room-1",
		UserID:      userID,
		Role:        role,
		DisplayName: userID,
	})
	require.NoError(t, err)
	return engine
}

func TestNewEngine_RejectsInvalidIdentity(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	notifier := &recordingNotifier{}

	_, err := NewEngine(broker, notifier, testLogger(), Config{RoomID: "", UserID: "u", Role: types.RoleTeacher})
	assert.ErrorIs(t, err, ErrInvalidRoomID)

	_, err = NewEngine(broker, notifier, testLogger(), Config{RoomID: "r", UserID: "bad id", Role: types.RoleTeacher})
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewEngine(broker, notifier, testLogger(), Config{RoomID: "r", UserID: "u", Role: types.Role("admin")})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestEngine_ConnectIsIdempotent(t *testing.T) {
	counting := &countingTransport{inner: transport.NewMemoryBroker(testLogger())}
	engine := newTestEngine(t, counting, "teacher1", types.RoleTeacher)
	ctx := context.Background()

	require.NoError(t, engine.Connect(ctx))
	require.NoError(t, engine.Connect(ctx))
	require.NoError(t, engine.Connect(ctx))

	assert.Equal(t, int32(1), counting.subscribes.Load(), "repeated connects must not open duplicate channels")
	assert.Equal(t, StateConnected, engine.State())
	assert.True(t, engine.IsConnected())
}

func TestEngine_DisconnectResetsAndAllowsReconnect(t *testing.T) {
	counting := &countingTransport{inner: transport.NewMemoryBroker(testLogger())}
	engine := newTestEngine(t, counting, "teacher1", types.RoleTeacher)
	ctx := context.Background()

	require.NoError(t, engine.Connect(ctx))
	engine.SyncActiveTab(ctx, "vocabulary")
	engine.AddChatMessage(types.ChatMessage{ID: "m1", SenderID: "teacher1", Text: "hi"})

	engine.Disconnect()
	assert.Equal(t, StateIdle, engine.State())
	snap := engine.Snapshot()
	assert.Empty(t, snap.ActiveTab, "disconnect must clear synchronized state")
	assert.Empty(t, snap.ChatMessages)
	assert.Empty(t, snap.Participants)

	// Disconnect is safe to repeat
	engine.Disconnect()

	require.NoError(t, engine.Connect(ctx))
	assert.Equal(t, int32(2), counting.subscribes.Load(), "reconnect opens a fresh channel")
	assert.Equal(t, StateConnected, engine.State())
}

func TestEngine_ConnectTimeoutEntersErrorState(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, err := NewEngine(stalledTransport{}, notifier, testLogger(), Config{
		RoomID:         "room-1",
		UserID:         "teacher1",
		Role:           types.RoleTeacher,
		ConnectTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Error(t, engine.Connect(context.Background()))
	assert.Equal(t, StateError, engine.State())
	assert.Equal(t, 1, notifier.count(), "a failed connect surfaces one destructive notification")
}

func TestEngine_RetryAfterErrorSucceeds(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	notifier := &recordingNotifier{}
	engine, err := NewEngine(stalledTransport{}, notifier, testLogger(), Config{
		RoomID:         "room-1",
		UserID:         "teacher1",
		Role:           types.RoleTeacher,
		ConnectTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Error(t, engine.Connect(context.Background()))
	require.Equal(t, StateError, engine.State())

	// StateError does not latch; a later connect over a healthy transport
	// proceeds normally
	engine.transport = broker
	require.NoError(t, engine.Connect(context.Background()))
	assert.Equal(t, StateConnected, engine.State())
}

func TestEngine_TeacherBroadcastReachesStudent(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)
	student := newTestEngine(t, broker, "student1", types.RoleStudent)
	ctx := context.Background()

	require.NoError(t, teacher.Connect(ctx))
	require.NoError(t, student.Connect(ctx))

	// Wait for presence convergence so the student can verify the sender's
	// role when the broadcast arrives
	require.Eventually(t, func() bool {
		return len(student.Snapshot().Participants) == 2 && len(teacher.Snapshot().Participants) == 2
	}, time.Second, 10*time.Millisecond)

	teacher.SyncSlideChange(ctx, 4)
	teacher.SyncActiveTab(ctx, "grammar")
	teacher.SyncWhiteboard(ctx, json.RawMessage(`{"strokes":[1,2,3]}`))

	require.Eventually(t, func() bool {
		snap := student.Snapshot()
		return snap.CurrentSlide == 4 && snap.ActiveTab == "grammar" && string(snap.WhiteboardData) == `{"strokes":[1,2,3]}`
	}, time.Second, 10*time.Millisecond)

	// Sender applied optimistically; the echoed copy must not disturb it
	snap := teacher.Snapshot()
	assert.Equal(t, 4, snap.CurrentSlide)
	assert.Equal(t, "grammar", snap.ActiveTab)
}

func TestEngine_StudentCannotDriveTabOrSlide(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)
	student := newTestEngine(t, broker, "student1", types.RoleStudent)
	ctx := context.Background()

	require.NoError(t, teacher.Connect(ctx))
	require.NoError(t, student.Connect(ctx))
	require.Eventually(t, func() bool {
		return len(teacher.Snapshot().Participants) == 2
	}, time.Second, 10*time.Millisecond)

	teacher.SyncSlideChange(ctx, 2)
	require.Eventually(t, func() bool {
		return student.Snapshot().CurrentSlide == 2
	}, time.Second, 10*time.Millisecond)

	student.SyncSlideChange(ctx, 9)
	student.SyncActiveTab(ctx, "games")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, teacher.Snapshot().CurrentSlide, "student slide change must not propagate")
	assert.Empty(t, teacher.Snapshot().ActiveTab)
	assert.Equal(t, 2, student.Snapshot().CurrentSlide, "student's own state must not change either")
	assert.Empty(t, student.Snapshot().ActiveTab)
}

func TestEngine_StudentWhiteboardPropagates(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)
	student := newTestEngine(t, broker, "student1", types.RoleStudent)
	ctx := context.Background()

	require.NoError(t, teacher.Connect(ctx))
	require.NoError(t, student.Connect(ctx))
	require.Eventually(t, func() bool {
		return len(teacher.Snapshot().Participants) == 2
	}, time.Second, 10*time.Millisecond)

	student.SyncWhiteboard(ctx, json.RawMessage(`{"strokes":["circle"]}`))

	require.Eventually(t, func() bool {
		return string(teacher.Snapshot().WhiteboardData) == `{"strokes":["circle"]}`
	}, time.Second, 10*time.Millisecond)
}

func TestEngine_UnknownSenderIsDropped(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	student := newTestEngine(t, broker, "student1", types.RoleStudent)
	ctx := context.Background()
	require.NoError(t, student.Connect(ctx))

	// A raw channel with no tracked presence: the sender's role cannot be
	// verified, so teacher-only events from it are dropped
	raw, err := broker.Subscribe(ctx, RoomTopic("room-1"))
	require.NoError(t, err)
	payload, _ := json.Marshal(types.SlideChange{SlideNumber: 7, UserID: "ghost"})
	require.NoError(t, raw.Send(ctx, &types.Envelope{
		Event:    types.EventSlideChange,
		SenderID: "ghost",
		Payload:  payload,
		SentAt:   time.Now(),
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, student.Snapshot().CurrentSlide)
}

func TestEngine_IgnoresOwnEchoedBroadcasts(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)
	ctx := context.Background()

	require.NoError(t, teacher.Connect(ctx))
	teacher.SyncSlideChange(ctx, 3)
	teacher.SyncActiveTab(ctx, "grammar")
	teacher.SyncWhiteboard(ctx, json.RawMessage(`{"strokes":["local"]}`))

	// A raw handle replays envelopes attributed to the engine's own user,
	// carrying values that differ from the optimistic local ones. The
	// sender's role would pass the authority check, so only the sender-ID
	// comparison keeps these from clobbering local state.
	raw, err := broker.Subscribe(ctx, RoomTopic("room-1"))
	require.NoError(t, err)

	slide, _ := json.Marshal(types.SlideChange{SlideNumber: 9, UserID: "teacher1"})
	require.NoError(t, raw.Send(ctx, &types.Envelope{
		Event: types.EventSlideChange, SenderID: "teacher1", Payload: slide, SentAt: time.Now(),
	}))
	tab, _ := json.Marshal(types.TabChange{TabID: "stale", UserID: "teacher1"})
	require.NoError(t, raw.Send(ctx, &types.Envelope{
		Event: types.EventTabChange, SenderID: "teacher1", Payload: tab, SentAt: time.Now(),
	}))
	board, _ := json.Marshal(types.WhiteboardUpdate{Data: json.RawMessage(`{"strokes":["stale"]}`), UserID: "teacher1"})
	require.NoError(t, raw.Send(ctx, &types.Envelope{
		Event: types.EventWhiteboardUpdate, SenderID: "teacher1", Payload: board, SentAt: time.Now(),
	}))

	time.Sleep(50 * time.Millisecond)
	snap := teacher.Snapshot()
	assert.Equal(t, 3, snap.CurrentSlide, "echoed slide change must not apply")
	assert.Equal(t, "grammar", snap.ActiveTab, "echoed tab change must not apply")
	assert.Equal(t, `{"strokes":["local"]}`, string(snap.WhiteboardData), "echoed whiteboard update must not apply")
}

func TestEngine_BroadcastWhileDisconnectedIsNoOp(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)

	// Never connected: the call logs and drops, the UI state still updates
	teacher.SyncSlideChange(context.Background(), 3)
	assert.Equal(t, 3, teacher.Snapshot().CurrentSlide)
}

func TestEngine_PresenceRosterTracksLeaves(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	teacher := newTestEngine(t, broker, "teacher1", types.RoleTeacher)
	student := newTestEngine(t, broker, "student1", types.RoleStudent)
	ctx := context.Background()

	require.NoError(t, teacher.Connect(ctx))
	require.NoError(t, student.Connect(ctx))
	require.Eventually(t, func() bool {
		return len(teacher.Snapshot().Participants) == 2
	}, time.Second, 10*time.Millisecond)

	student.Disconnect()
	require.Eventually(t, func() bool {
		roster := teacher.Snapshot().Participants
		return len(roster) == 1 && roster[0].UserID == "teacher1"
	}, time.Second, 10*time.Millisecond)
}

func TestEngine_ChatLogIsAppendOnly(t *testing.T) {
	broker := transport.NewMemoryBroker(testLogger())
	engine := newTestEngine(t, broker, "teacher1", types.RoleTeacher)

	engine.AddChatMessage(types.ChatMessage{ID: "m1", SenderID: "teacher1", Text: "hello"})
	engine.AddChatMessage(types.ChatMessage{ID: "m2", SenderID: "teacher1", Text: "world"})

	snap := engine.Snapshot()
	require.Len(t, snap.ChatMessages, 2)
	assert.Equal(t, "hello", snap.ChatMessages[0].Text)
	assert.Equal(t, "world", snap.ChatMessages[1].Text)

	// Mutating the snapshot must not leak back into engine state
	snap.ChatMessages[0].Text = "tampered"
	assert.Equal(t, "hello", engine.Snapshot().ChatMessages[0].Text)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", ConnState(42).String())
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// DefaultConnectTimeout bounds how long a subscribe may sit in "connecting"
// before the engine transitions to StateError instead of hanging forever.
const DefaultConnectTimeout = 10 * time.Second

// RoomTopic derives the channel topic for a classroom.
// The presence key inside the topic is the user ID, so two tabs of one
// logical user collide with themselves and with nobody else.
func RoomTopic(roomID string) string {
	return "classroom:" + roomID
}

// Config captures the identity an engine instance is bound to.
type Config struct {
	RoomID         string
	UserID         string
	Role           types.Role
	DisplayName    string
	ConnectTimeout time.Duration
}

// Engine owns exactly one channel per (room, participant) pair and keeps the
// shared SyncState consistent across all connected participants, honoring
// role authority.
// ARCHITECTURAL DISCOVERY: The engine is deliberately decoupled from the
// session lifecycle manager; losing the channel never destroys the logical
// session record, and vice versa
type Engine struct {
	transport interfaces.Transport
	notifier  interfaces.Notifier
	logger    *logrus.Entry

	roomID         string
	userID         string
	role           types.Role
	displayName    string
	connectTimeout time.Duration

	mu       sync.RWMutex
	state    ConnState
	channel  interfaces.Channel
	sync     SyncState
	presence map[string]types.PresenceRecord
}

// NewEngine creates an engine bound to one participant in one room.
func NewEngine(transport interfaces.Transport, notifier interfaces.Notifier, logger *logrus.Logger, cfg Config) (*Engine, error) {
	if !types.IsValidRoomID(cfg.RoomID) {
		return nil, ErrInvalidRoomID
	}
	if !types.IsValidUserID(cfg.UserID) {
		return nil, ErrInvalidUserID
	}
	if !types.IsValidRole(cfg.Role) {
		return nil, ErrInvalidRole
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Engine{
		transport:      transport,
		notifier:       notifier,
		logger:         logger.WithField("component", "sync-engine").WithField("room", cfg.RoomID).WithField("user", cfg.UserID),
		roomID:         cfg.RoomID,
		userID:         cfg.UserID,
		role:           cfg.Role,
		displayName:    cfg.DisplayName,
		connectTimeout: timeout,
		state:          StateIdle,
		presence:       make(map[string]types.PresenceRecord),
	}, nil
}

// Connect subscribes the engine's channel and tracks this participant's
// presence. Idempotent: a call that finds a connect in flight or an active
// channel is a no-op.
// FUNCTIONAL DISCOVERY: This guard is the primary correctness requirement;
// naive re-invocation under re-render or reconnect storms would open
// duplicate channels and double-deliver every broadcast
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateConnecting || e.state == StateConnected {
		e.mu.Unlock()
		e.logger.Debug("connect skipped: already connecting or connected")
		return nil
	}
	// Replace any stale handle left over from a failed attempt
	stale := e.channel
	e.channel = nil
	e.state = StateConnecting
	e.mu.Unlock()

	if stale != nil {
		_ = stale.Release()
	}

	subCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	ch, err := e.transport.Subscribe(subCtx, RoomTopic(e.roomID))
	if err != nil {
		return e.failConnect(fmt.Errorf("subscribe room %s: %w", e.roomID, err))
	}

	// Handlers must be in place before presence is tracked; Track replays
	// the roster and may deliver immediately
	ch.OnBroadcast(types.EventWhiteboardUpdate, e.handleWhiteboardUpdate)
	ch.OnBroadcast(types.EventTabChange, e.handleTabChange)
	ch.OnBroadcast(types.EventSlideChange, e.handleSlideChange)
	ch.OnPresence(e.handlePresence)

	record := types.PresenceRecord{
		UserID:   e.userID,
		UserRole: e.role,
		Name:     e.displayName,
		JoinedAt: time.Now(),
	}
	if err := ch.Track(subCtx, record); err != nil {
		_ = ch.Release()
		return e.failConnect(fmt.Errorf("track presence: %w", err))
	}

	e.mu.Lock()
	if e.state != StateConnecting {
		// Disconnect raced this connect; discard the now-orphaned handle
		e.mu.Unlock()
		_ = ch.Release()
		e.logger.Debug("connect abandoned: disconnected while connecting")
		return nil
	}
	e.channel = ch
	e.state = StateConnected
	e.mu.Unlock()

	e.logger.Info("classroom channel connected")
	return nil
}

func (e *Engine) failConnect(err error) error {
	e.mu.Lock()
	e.state = StateError
	e.channel = nil
	e.mu.Unlock()

	e.logger.WithError(err).Error("classroom channel connect failed")
	e.notifier.Notify(interfaces.Notification{
		Title:       "Connection problem",
		Description: "Could not reach the classroom. Reconnecting may help.",
		Variant:     interfaces.VariantDestructive,
	})
	return err
}

// Disconnect releases the channel and resets the engine to StateIdle,
// clearing the synchronized state. Safe to call multiple times and while a
// connect is in flight.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	ch := e.channel
	e.channel = nil
	e.state = StateIdle
	e.sync = SyncState{}
	e.presence = make(map[string]types.PresenceRecord)
	e.mu.Unlock()

	if ch != nil {
		_ = ch.Release()
		e.logger.Info("classroom channel released")
	}
}

// State returns the engine's connection state.
func (e *Engine) State() ConnState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsConnected reports whether the channel is live.
func (e *Engine) IsConnected() bool {
	return e.State() == StateConnected
}

// Snapshot returns a copy of the shared classroom state.
func (e *Engine) Snapshot() SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sync.clone()
}

// SyncWhiteboard applies a whiteboard payload locally (optimistic) and
// broadcasts it. Any role may draw.
func (e *Engine) SyncWhiteboard(ctx context.Context, data json.RawMessage) {
	if !types.CanOriginate(e.role, types.EventWhiteboardUpdate) {
		e.logger.Debug("whiteboard update rejected by authority check")
		return
	}
	e.mu.Lock()
	e.sync.WhiteboardData = data
	e.mu.Unlock()

	payload, err := json.Marshal(types.WhiteboardUpdate{Data: data, UserID: e.userID})
	if err != nil {
		e.logger.WithError(err).Warn("whiteboard payload marshal failed")
		return
	}
	e.broadcast(ctx, types.EventWhiteboardUpdate, payload)
}

// SyncActiveTab switches the shared tab. Teacher-authoritative: a non-teacher
// call is a logged no-op with no state change and no broadcast.
func (e *Engine) SyncActiveTab(ctx context.Context, tabID string) {
	if !types.CanOriginate(e.role, types.EventTabChange) {
		e.logger.WithField("tab", tabID).Debug("tab change rejected: teacher authority required")
		return
	}
	e.mu.Lock()
	e.sync.ActiveTab = tabID
	e.mu.Unlock()

	payload, err := json.Marshal(types.TabChange{TabID: tabID, UserID: e.userID})
	if err != nil {
		e.logger.WithError(err).Warn("tab payload marshal failed")
		return
	}
	e.broadcast(ctx, types.EventTabChange, payload)
}

// SyncSlideChange moves the shared slide index. Teacher-authoritative.
func (e *Engine) SyncSlideChange(ctx context.Context, slideNumber int) {
	if !types.CanOriginate(e.role, types.EventSlideChange) {
		e.logger.WithField("slide", slideNumber).Debug("slide change rejected: teacher authority required")
		return
	}
	e.mu.Lock()
	e.sync.CurrentSlide = slideNumber
	e.mu.Unlock()

	payload, err := json.Marshal(types.SlideChange{SlideNumber: slideNumber, UserID: e.userID})
	if err != nil {
		e.logger.WithError(err).Warn("slide payload marshal failed")
		return
	}
	e.broadcast(ctx, types.EventSlideChange, payload)
}

// AddChatMessage appends a message to the local chat log. Chat transport and
// persistence belong to external collaborators; this only keeps the in-memory
// log consistent for rendering.
func (e *Engine) AddChatMessage(msg types.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sync.ChatMessages = append(e.sync.ChatMessages, msg)
}

// broadcast sends a payload tagged with the local participant id, only when
// connected. Best-effort, at-most-once: callers never await delivery and
// never see transport errors.
func (e *Engine) broadcast(ctx context.Context, event string, payload json.RawMessage) {
	e.mu.RLock()
	ch := e.channel
	connected := e.state == StateConnected
	e.mu.RUnlock()

	if !connected || ch == nil {
		e.logger.WithField("event", event).Warn("broadcast skipped: channel not connected")
		return
	}

	env := &types.Envelope{
		Event:    event,
		SenderID: e.userID,
		Payload:  payload,
		SentAt:   time.Now(),
	}
	if err := ch.Send(ctx, env); err != nil {
		e.logger.WithError(err).WithField("event", event).Warn("broadcast send failed")
	}
}

func (e *Engine) handleWhiteboardUpdate(env *types.Envelope) {
	// Echo suppression: the transport redelivers our own broadcasts
	if env.SenderID == e.userID {
		return
	}
	var p types.WhiteboardUpdate
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		e.logger.WithError(err).Warn("dropped malformed whiteboard update")
		return
	}
	e.mu.Lock()
	e.sync.WhiteboardData = p.Data
	e.mu.Unlock()
}

func (e *Engine) handleTabChange(env *types.Envelope) {
	if env.SenderID == e.userID {
		return
	}
	if !e.senderMayOriginate(env.SenderID, types.EventTabChange) {
		e.logger.WithField("sender", env.SenderID).Warn("dropped tab change from unauthorized sender")
		return
	}
	var p types.TabChange
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		e.logger.WithError(err).Warn("dropped malformed tab change")
		return
	}
	e.mu.Lock()
	e.sync.ActiveTab = p.TabID
	e.mu.Unlock()
}

func (e *Engine) handleSlideChange(env *types.Envelope) {
	if env.SenderID == e.userID {
		return
	}
	if !e.senderMayOriginate(env.SenderID, types.EventSlideChange) {
		e.logger.WithField("sender", env.SenderID).Warn("dropped slide change from unauthorized sender")
		return
	}
	var p types.SlideChange
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		e.logger.WithError(err).Warn("dropped malformed slide change")
		return
	}
	e.mu.Lock()
	e.sync.CurrentSlide = p.SlideNumber
	e.mu.Unlock()
}

// senderMayOriginate is the defense-in-depth half of authority gating: even
// if a buggy or malicious client broadcasts a teacher-only event, the engine
// drops it before it reaches UI state.
// FUNCTIONAL DISCOVERY: Sender role is resolved from the presence roster; an
// unknown sender cannot prove authority and is dropped
func (e *Engine) senderMayOriginate(senderID, event string) bool {
	e.mu.RLock()
	rec, known := e.presence[senderID]
	e.mu.RUnlock()
	if !known {
		return false
	}
	return types.CanOriginate(rec.UserRole, event)
}

func (e *Engine) handlePresence(ev interfaces.PresenceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Kind {
	case interfaces.PresenceJoin, interfaces.PresenceSync:
		e.presence[ev.Record.UserID] = ev.Record
	case interfaces.PresenceLeave:
		delete(e.presence, ev.Record.UserID)
	default:
		return
	}

	// Rebuild the point-in-time roster; stable order keeps UI lists calm
	roster := make([]types.PresenceRecord, 0, len(e.presence))
	for _, rec := range e.presence {
		roster = append(roster, rec)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].UserID < roster[j].UserID
		}
		return roster[i].JoinedAt.Before(roster[j].JoinedAt)
	})
	e.sync.Participants = roster
}

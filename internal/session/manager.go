package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// Manager owns the single ephemeral SessionData record for one participant in
// one room: whether a classroom session exists, who created it, its settings.
// At most one non-nil record per manager instance.
type Manager struct {
	store    interfaces.SessionStore
	notifier interfaces.Notifier
	logger   *logrus.Entry

	roomID string
	userID string
	role   types.Role

	mu      sync.Mutex
	phase   Phase
	current *types.SessionData

	// FUNCTIONAL DISCOVERY: Buffered transition events; a slow consumer
	// drops events rather than blocking lifecycle operations
	events chan Event
}

// NewManager creates a session lifecycle manager bound to one participant.
func NewManager(store interfaces.SessionStore, notifier interfaces.Notifier, logger *logrus.Logger, roomID, userID string, role types.Role) (*Manager, error) {
	if !types.IsValidRoomID(roomID) {
		return nil, ErrInvalidRoomID
	}
	if !types.IsValidUserID(userID) {
		return nil, ErrInvalidUserID
	}
	if !types.IsValidRole(role) {
		return nil, ErrInvalidRole
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger.WithField("component", "session-manager").WithField("room", roomID).WithField("user", userID),
		roomID:   roomID,
		userID:   userID,
		role:     role,
		phase:    PhaseNoSession,
		events:   make(chan Event, 8),
	}, nil
}

// Events exposes lifecycle transition events, emitted once per transition.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Current returns a copy of the live session record, or nil.
func (m *Manager) Current() *types.SessionData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.current)
}

// CreateSession starts a new classroom session. Teacher-only; a duplicate
// call while a session exists or a create/join is in flight is a no-op.
// FUNCTIONAL DISCOVERY: Permission and duplicate rejections are not errors;
// their triggering causes (re-render, fast remount) are normal, so the caller
// sees nil and the user sees at most a notification
func (m *Manager) CreateSession(ctx context.Context) error {
	if m.role != types.RoleTeacher {
		m.logger.Debug("create rejected: teacher role required")
		m.notifier.Notify(interfaces.Notification{
			Title:       "Not allowed",
			Description: "Only the teacher can start a class session.",
			Variant:     interfaces.VariantDestructive,
		})
		return nil
	}

	m.mu.Lock()
	if m.phase != PhaseNoSession {
		m.mu.Unlock()
		m.logger.WithField("phase", m.phase.String()).Debug("create skipped: session exists or operation in flight")
		return nil
	}
	m.phase = PhaseCreating
	m.mu.Unlock()

	sess := &types.SessionData{
		ID:           uuid.New().String(),
		RoomID:       m.roomID,
		CreatedBy:    m.userID,
		CreatedAt:    time.Now(),
		IsActive:     true,
		Participants: []string{m.userID},
		Settings:     types.DefaultSettings(),
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		// No partial session objects: revert the phase before surfacing
		m.mu.Lock()
		m.phase = PhaseNoSession
		m.mu.Unlock()
		m.notifier.Notify(interfaces.Notification{
			Title:       "Could not start the class",
			Description: "The session could not be created. Please try again.",
			Variant:     interfaces.VariantDestructive,
		})
		return fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.current = sess
	m.phase = PhaseActive
	m.mu.Unlock()

	m.logger.WithField("session", sess.ID).Info("session created")
	m.emit(EventSessionCreated, sess)
	m.notifier.Notify(interfaces.Notification{
		Title:       "Class started",
		Description: "Your classroom session is live.",
		Variant:     interfaces.VariantDefault,
	})
	return nil
}

// JoinSession attaches this participant to the room's session. Any role may
// join; a duplicate call is a no-op. When no session record exists for the
// room one is synthesized, matching the reference behavior of joining a class
// whose record has not propagated yet.
func (m *Manager) JoinSession(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseNoSession {
		m.mu.Unlock()
		m.logger.WithField("phase", m.phase.String()).Debug("join skipped: session exists or operation in flight")
		return nil
	}
	m.phase = PhaseJoining
	m.mu.Unlock()

	sess, err := m.store.GetSessionByRoom(ctx, m.roomID)
	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrSessionNotFound):
		sess = &types.SessionData{
			ID:           uuid.New().String(),
			RoomID:       m.roomID,
			CreatedBy:    m.userID,
			CreatedAt:    time.Now(),
			IsActive:     true,
			Participants: nil,
			Settings:     types.DefaultSettings(),
		}
		m.logger.Debug("no session record for room; synthesizing one")
	default:
		m.mu.Lock()
		m.phase = PhaseNoSession
		m.mu.Unlock()
		m.notifier.Notify(interfaces.Notification{
			Title:       "Could not join the class",
			Description: "The session lookup failed. Please try again.",
			Variant:     interfaces.VariantDestructive,
		})
		return fmt.Errorf("join session: %w", err)
	}

	if !sess.HasParticipant(m.userID) {
		sess.Participants = append(sess.Participants, m.userID)
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		m.mu.Lock()
		m.phase = PhaseNoSession
		m.mu.Unlock()
		m.notifier.Notify(interfaces.Notification{
			Title:       "Could not join the class",
			Description: "The session could not be updated. Please try again.",
			Variant:     interfaces.VariantDestructive,
		})
		return fmt.Errorf("join session: %w", err)
	}

	m.mu.Lock()
	m.current = sess
	m.phase = PhaseActive
	m.mu.Unlock()

	m.logger.WithField("session", sess.ID).Info("session joined")
	m.emit(EventSessionJoined, sess)
	m.notifier.Notify(interfaces.Notification{
		Title:       "Joined class",
		Description: "You are in the classroom session.",
		Variant:     interfaces.VariantDefault,
	})
	return nil
}

// LeaveSession clears the local record and withdraws this participant from
// the stored roster. Idempotent: leaving with no session is a safe no-op.
func (m *Manager) LeaveSession(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	sess := m.current
	m.current = nil
	m.phase = PhaseNoSession
	m.mu.Unlock()

	// The creator leaving ends the session record; anyone else just drops
	// off the roster. Store errors are logged, not surfaced: the local
	// record is already gone and the record itself is ephemeral.
	if sess.CreatedBy == m.userID {
		if err := m.store.DeleteSession(ctx, m.roomID); err != nil {
			m.logger.WithError(err).Warn("session record cleanup failed")
		}
	} else {
		remaining := make([]string, 0, len(sess.Participants))
		for _, id := range sess.Participants {
			if id != m.userID {
				remaining = append(remaining, id)
			}
		}
		sess.Participants = remaining
		if err := m.store.SaveSession(ctx, sess); err != nil {
			m.logger.WithError(err).Warn("roster update failed on leave")
		}
	}

	m.logger.WithField("session", sess.ID).Info("session left")
	m.emit(EventSessionLeft, sess)
	m.notifier.Notify(interfaces.Notification{
		Title:       "Left class",
		Description: "You left the classroom session.",
		Variant:     interfaces.VariantDefault,
	})
	return nil
}

// UpdateSettings merges a partial settings patch into the session settings.
// Teacher-only; silently rejected otherwise with no state change.
func (m *Manager) UpdateSettings(ctx context.Context, patch types.SettingsPatch) error {
	if m.role != types.RoleTeacher {
		m.logger.Debug("settings update rejected: teacher role required")
		return nil
	}

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		m.logger.Debug("settings update skipped: no active session")
		return nil
	}
	// Merge onto a copy so a store failure leaves state unchanged
	updated := *m.current
	updated.Participants = append([]string(nil), m.current.Participants...)
	if patch.AllowRecording != nil {
		updated.Settings.AllowRecording = *patch.AllowRecording
	}
	if patch.MaxParticipants != nil {
		updated.Settings.MaxParticipants = *patch.MaxParticipants
	}
	if patch.IsPublic != nil {
		updated.Settings.IsPublic = *patch.IsPublic
	}
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, &updated); err != nil {
		m.notifier.Notify(interfaces.Notification{
			Title:       "Settings not saved",
			Description: "The session settings could not be updated.",
			Variant:     interfaces.VariantDestructive,
		})
		return fmt.Errorf("update settings: %w", err)
	}

	m.mu.Lock()
	// The save ran outside the lock; a leave may have cleared or replaced
	// the record meanwhile, and reinstalling would resurrect it
	if m.current == nil || m.current.ID != updated.ID {
		m.mu.Unlock()
		m.logger.Debug("settings update discarded: session ended during save")
		return nil
	}
	m.current = &updated
	m.mu.Unlock()

	m.logger.Info("session settings updated")
	return nil
}

func (m *Manager) emit(kind EventKind, sess *types.SessionData) {
	ev := Event{Kind: kind, Session: *cloneSession(sess), At: time.Now()}
	// Non-blocking send; lifecycle operations never wait on consumers
	select {
	case m.events <- ev:
	default:
		m.logger.WithField("event", string(kind)).Warn("lifecycle event dropped: slow consumer")
	}
}

func cloneSession(sess *types.SessionData) *types.SessionData {
	if sess == nil {
		return nil
	}
	out := *sess
	out.Participants = append([]string(nil), sess.Participants...)
	return &out
}

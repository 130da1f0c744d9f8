// Package initializer is the composition root for entering a classroom: it
// runs the one-time "confirm authenticated, then create-or-join" sequence
// exactly once per mount and rolls back cleanly on unmount.
package initializer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"classync/internal/realtime"
	"classync/internal/session"
	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// DefaultStartupDelay lets dependent UI components finish mounting before the
// session sequence starts. An ordering concern, not a correctness one;
// skipping it causes visible flicker.
const DefaultStartupDelay = 300 * time.Millisecond

// Phase is the initializer's state machine.
// ARCHITECTURAL DISCOVERY: One enum replaces the independent "done" and
// "in progress" boolean latches; Done-while-InProgress is unrepresentable
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInProgress:
		return "in-progress"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Initializer sequences authentication and session entry without blocking on
// the synchronization engine; the engine connects independently.
type Initializer struct {
	auth     interfaces.AuthProvider
	sessions *session.Manager
	engine   *realtime.Engine
	logger   *logrus.Entry

	// inClassroom is the cheap navigation-context precondition: initializing
	// sync machinery on unrelated pages wastes work and can leak channels
	inClassroom  func() bool
	startupDelay time.Duration

	mu    sync.Mutex
	phase Phase
}

// New creates an initializer. inClassroom may be nil when the caller is
// always a classroom context.
func New(auth interfaces.AuthProvider, sessions *session.Manager, engine *realtime.Engine, logger *logrus.Logger, inClassroom func() bool, startupDelay time.Duration) *Initializer {
	if startupDelay < 0 {
		startupDelay = DefaultStartupDelay
	}
	return &Initializer{
		auth:         auth,
		sessions:     sessions,
		engine:       engine,
		logger:       logger.WithField("component", "initializer"),
		inClassroom:  inClassroom,
		startupDelay: startupDelay,
		phase:        PhaseIdle,
	}
}

// Phase returns the initializer's current phase.
func (i *Initializer) Phase() Phase {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phase
}

// Initialize runs the one-time entry sequence. Re-entrant calls while a run
// is in progress or after completion are no-ops; aborted runs (no principal,
// errors) leave the initializer retryable on a later mount.
func (i *Initializer) Initialize(ctx context.Context) error {
	i.mu.Lock()
	if i.phase != PhaseIdle {
		i.mu.Unlock()
		i.logger.WithField("phase", i.phase.String()).Debug("initialize skipped: already done or in progress")
		return nil
	}
	if i.inClassroom != nil && !i.inClassroom() {
		i.mu.Unlock()
		i.logger.Debug("initialize skipped: not a classroom context")
		return nil
	}
	i.phase = PhaseInProgress
	i.mu.Unlock()

	// FUNCTIONAL DISCOVERY: The in-progress guard is always cleared, error
	// or not; only a completed run latches Done so failures stay retryable
	completed := false
	defer func() {
		i.mu.Lock()
		if completed {
			i.phase = PhaseDone
		} else {
			i.phase = PhaseIdle
		}
		i.mu.Unlock()
	}()

	if i.startupDelay > 0 {
		select {
		case <-time.After(i.startupDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	principal, err := i.auth.CurrentPrincipal(ctx)
	if err != nil {
		i.logger.WithError(err).Error("auth lookup failed")
		return fmt.Errorf("auth lookup: %w", err)
	}
	if principal == nil {
		// Not signed in yet; a later mount retries once auth settles
		i.logger.Debug("initialize aborted: no authenticated principal")
		return nil
	}

	if principal.Role == types.RoleTeacher {
		err = i.sessions.CreateSession(ctx)
	} else {
		err = i.sessions.JoinSession(ctx)
	}
	if err != nil {
		i.logger.WithError(err).Error("session entry failed")
		return err
	}

	completed = true
	i.logger.Info("classroom initialization complete")
	return nil
}

// Shutdown rolls the mount back: the engine's channel is released and the
// phase resets so a subsequent mount starts clean. Safe to call repeatedly.
func (i *Initializer) Shutdown() {
	i.engine.Disconnect()
	i.mu.Lock()
	i.phase = PhaseIdle
	i.mu.Unlock()
	i.logger.Debug("initializer reset")
}

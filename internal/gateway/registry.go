package gateway

import (
	"sync"

	"github.com/sirupsen/logrus"

	"classync/pkg/types"
)

// Registry tracks gateway connections with thread-safe operations.
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping without classroom
// logic; role-split room maps give O(1) lookups for room fan-out and stats
type Registry struct {
	mu           sync.RWMutex
	byUser       map[string]*Conn            // userID -> connection
	roomTeachers map[string]map[string]*Conn // roomID -> userID -> connection
	roomStudents map[string]map[string]*Conn
	logger       *logrus.Entry
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		byUser:       make(map[string]*Conn),
		roomTeachers: make(map[string]map[string]*Conn),
		roomStudents: make(map[string]map[string]*Conn),
		logger:       logger.WithField("component", "gateway-registry"),
	}
}

// Register adds a connection, replacing any previous connection of the same
// user (a new tab supersedes the old one).
func (r *Registry) Register(conn *Conn) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byUser[conn.userID]; ok {
		// Close asynchronously to avoid deadlock during registration
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.WithError(err).Warn("failed to close superseded connection")
			}
		}()
		r.removeFromRoomLocked(existing)
	}

	r.byUser[conn.userID] = conn
	switch conn.role {
	case types.RoleTeacher:
		if r.roomTeachers[conn.roomID] == nil {
			r.roomTeachers[conn.roomID] = make(map[string]*Conn)
		}
		r.roomTeachers[conn.roomID][conn.userID] = conn
	case types.RoleStudent:
		if r.roomStudents[conn.roomID] == nil {
			r.roomStudents[conn.roomID] = make(map[string]*Conn)
		}
		r.roomStudents[conn.roomID][conn.userID] = conn
	}
	return nil
}

// Unregister removes a connection. Idempotent, and only removes the exact
// instance that is registered so a superseded connection cannot evict its
// replacement during cleanup.
func (r *Registry) Unregister(conn *Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.byUser[conn.userID]
	if !ok || registered != conn {
		return
	}
	delete(r.byUser, conn.userID)
	r.removeFromRoomLocked(conn)
}

func (r *Registry) removeFromRoomLocked(conn *Conn) {
	var rooms map[string]map[string]*Conn
	switch conn.role {
	case types.RoleTeacher:
		rooms = r.roomTeachers
	case types.RoleStudent:
		rooms = r.roomStudents
	default:
		return
	}
	if members, ok := rooms[conn.roomID]; ok {
		if members[conn.userID] == conn {
			delete(members, conn.userID)
		}
		if len(members) == 0 {
			delete(rooms, conn.roomID)
		}
	}
}

// UserConnection returns the current connection for a user.
func (r *Registry) UserConnection(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Stats reports registry occupancy for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]bool)
	for roomID := range r.roomTeachers {
		rooms[roomID] = true
	}
	for roomID := range r.roomStudents {
		rooms[roomID] = true
	}
	return map[string]int{
		"connections":  len(r.byUser),
		"active_rooms": len(rooms),
	}
}

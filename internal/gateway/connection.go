package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classync/pkg/types"
)

// Conn wraps one browser websocket.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; a single
// writer goroutine per connection eliminates write races
type Conn struct {
	ws           *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	userID string
	role   types.Role
	roomID string
	name   string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, userID string, role types.Role, roomID, name string, sendBuffer int, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws: ws,
		// FUNCTIONAL DISCOVERY: Buffered channel prevents blocking during
		// whiteboard bursts in classrooms with many participants
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		userID:       userID,
		role:         role,
		roomID:       roomID,
		name:         name,
		ctx:          ctx,
		cancel:       cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON message for the writer goroutine. Never blocks the
// caller beyond the write timeout.
func (c *Conn) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}

func (c *Conn) UserID() string   { return c.userID }
func (c *Conn) Role() types.Role { return c.role }
func (c *Conn) RoomID() string   { return c.roomID }

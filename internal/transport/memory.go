package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// MemoryBroker is an in-process transport: topic fan-out with per-handle
// buffered delivery and presence bookkeeping.
// ARCHITECTURAL DISCOVERY: Broadcasts are deliberately redelivered to the
// sending handle, mirroring transports that echo; the engine's suppression
// layer is exercised on every send, not only in production
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]*memoryTopic
	logger *logrus.Entry
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker(logger *logrus.Logger) *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]*memoryTopic),
		logger: logger.WithField("component", "memory-transport"),
	}
}

// Subscribe attaches a new handle to the topic, creating the topic on first use.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (interfaces.Channel, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b.mu.Lock()
	t, exists := b.topics[topic]
	if !exists {
		t = &memoryTopic{
			name:     topic,
			handles:  make(map[string]*memoryChannel),
			presence: make(map[string]types.PresenceRecord),
			owners:   make(map[string]map[string]struct{}),
		}
		b.topics[topic] = t
	}
	b.mu.Unlock()

	ch := &memoryChannel{
		id:                uuid.New().String(),
		topic:             t,
		logger:            b.logger.WithField("topic", topic),
		broadcastHandlers: make(map[string]interfaces.BroadcastHandler),
		// FUNCTIONAL DISCOVERY: 128 buffer absorbs whiteboard stroke bursts
		// without blocking the sender's dispatch
		deliverCh: make(chan func(), 128),
		done:      make(chan struct{}),
	}
	go ch.dispatchLoop()

	t.mu.Lock()
	t.handles[ch.id] = ch
	t.mu.Unlock()

	return ch, nil
}

type memoryTopic struct {
	name     string
	mu       sync.RWMutex
	handles  map[string]*memoryChannel
	presence map[string]types.PresenceRecord
	// owners maps a presence key to the handle IDs currently tracking it, so
	// a second tab of the same user does not drop presence when one closes
	owners map[string]map[string]struct{}
}

func (t *memoryTopic) snapshotHandles() []*memoryChannel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handles := make([]*memoryChannel, 0, len(t.handles))
	for _, h := range t.handles {
		handles = append(handles, h)
	}
	return handles
}

type memoryChannel struct {
	id     string
	topic  *memoryTopic
	logger *logrus.Entry

	mu                sync.RWMutex
	broadcastHandlers map[string]interfaces.BroadcastHandler
	presenceHandlers  []interfaces.PresenceHandler
	trackedKey        string

	deliverCh chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// ARCHITECTURAL DISCOVERY: Single dispatch goroutine per handle keeps handler
// invocation ordered per subscriber without locking inside handlers
func (c *memoryChannel) dispatchLoop() {
	for {
		select {
		case fn := <-c.deliverCh:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *memoryChannel) enqueue(fn func()) {
	select {
	case <-c.done:
		return
	default:
	}
	// Non-blocking send; at-most-once delivery drops on a full queue
	select {
	case c.deliverCh <- fn:
	default:
		c.logger.Warn("delivery dropped: subscriber queue full")
	}
}

func (c *memoryChannel) released() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// OnBroadcast registers the handler for one event kind.
func (c *memoryChannel) OnBroadcast(event string, handler interfaces.BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastHandlers[event] = handler
}

// OnPresence registers a presence handler.
func (c *memoryChannel) OnPresence(handler interfaces.PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presenceHandlers = append(c.presenceHandlers, handler)
}

// Track publishes this participant's presence and replays the current
// presence state to the local handlers.
// FUNCTIONAL DISCOVERY: Replay happens at Track time, after the engine has
// registered its handlers, so late joiners converge without racing handler
// registration
func (c *memoryChannel) Track(ctx context.Context, record types.PresenceRecord) error {
	if c.released() {
		return interfaces.ErrChannelReleased
	}
	if !types.IsValidUserID(record.UserID) {
		return types.ErrInvalidUserID
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t := c.topic
	t.mu.Lock()
	t.presence[record.UserID] = record
	if t.owners[record.UserID] == nil {
		t.owners[record.UserID] = make(map[string]struct{})
	}
	t.owners[record.UserID][c.id] = struct{}{}
	existing := make([]types.PresenceRecord, 0, len(t.presence))
	for key, rec := range t.presence {
		if key != record.UserID {
			existing = append(existing, rec)
		}
	}
	t.mu.Unlock()

	c.mu.Lock()
	c.trackedKey = record.UserID
	c.mu.Unlock()

	for _, h := range t.snapshotHandles() {
		h := h
		ev := interfaces.PresenceEvent{Kind: interfaces.PresenceJoin, Record: record}
		h.enqueue(func() { h.firePresence(ev) })
	}
	for _, rec := range existing {
		ev := interfaces.PresenceEvent{Kind: interfaces.PresenceSync, Record: rec}
		c.enqueue(func() { c.firePresence(ev) })
	}
	return nil
}

// Send fans the envelope out to every handle on the topic, sender included.
func (c *memoryChannel) Send(ctx context.Context, envelope *types.Envelope) error {
	if c.released() {
		return interfaces.ErrChannelReleased
	}
	if err := envelope.Validate(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, h := range c.topic.snapshotHandles() {
		h := h
		env := *envelope
		h.enqueue(func() { h.fireBroadcast(&env) })
	}
	return nil
}

// PresenceState returns a point-in-time copy of the topic's presence map.
func (c *memoryChannel) PresenceState(ctx context.Context) (map[string]types.PresenceRecord, error) {
	if c.released() {
		return nil, interfaces.ErrChannelReleased
	}
	t := c.topic
	t.mu.RLock()
	defer t.mu.RUnlock()
	state := make(map[string]types.PresenceRecord, len(t.presence))
	for key, rec := range t.presence {
		state[key] = rec
	}
	return state, nil
}

// Release detaches the handle and withdraws presence when this was the last
// handle tracking its key. Safe to call multiple times.
func (c *memoryChannel) Release() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.RLock()
		key := c.trackedKey
		c.mu.RUnlock()

		t := c.topic
		t.mu.Lock()
		delete(t.handles, c.id)
		var left *types.PresenceRecord
		if key != "" {
			if owners, ok := t.owners[key]; ok {
				delete(owners, c.id)
				if len(owners) == 0 {
					delete(t.owners, key)
					if rec, tracked := t.presence[key]; tracked {
						delete(t.presence, key)
						left = &rec
					}
				}
			}
		}
		t.mu.Unlock()

		if left != nil {
			for _, h := range t.snapshotHandles() {
				h := h
				ev := interfaces.PresenceEvent{Kind: interfaces.PresenceLeave, Record: *left}
				h.enqueue(func() { h.firePresence(ev) })
			}
		}
	})
	return nil
}

func (c *memoryChannel) fireBroadcast(env *types.Envelope) {
	c.mu.RLock()
	handler := c.broadcastHandlers[env.Event]
	c.mu.RUnlock()
	if handler != nil {
		handler(env)
	}
}

func (c *memoryChannel) firePresence(ev interfaces.PresenceEvent) {
	c.mu.RLock()
	handlers := make([]interfaces.PresenceHandler, len(c.presenceHandlers))
	copy(handlers, c.presenceHandlers)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

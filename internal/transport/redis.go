package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

const (
	broadcastChannelPrefix = "classync:bcast:"
	presenceChannelPrefix  = "classync:pres:"
	presenceHashPrefix     = "classync:presence:"

	releaseTimeout = 5 * time.Second
)

// RedisTransport implements the channel transport over Redis pub/sub.
// Broadcast and presence events ride two pub/sub channels per topic; the
// presence state itself lives in a TTL-bounded hash so a late joiner can
// reconstruct the roster without replaying history.
// ARCHITECTURAL DISCOVERY: Redis pub/sub redelivers published messages to the
// publisher's own subscription, which is exactly the echo behavior the
// engine's suppression layer is built for
type RedisTransport struct {
	client      *redis.Client
	logger      *logrus.Entry
	presenceTTL time.Duration
}

// NewRedisTransport creates a Redis-backed transport. presenceTTL bounds how
// long a crashed participant lingers in the roster.
func NewRedisTransport(client *redis.Client, logger *logrus.Logger, presenceTTL time.Duration) *RedisTransport {
	if presenceTTL <= 0 {
		presenceTTL = 2 * time.Minute
	}
	return &RedisTransport{
		client:      client,
		logger:      logger.WithField("component", "redis-transport"),
		presenceTTL: presenceTTL,
	}
}

// Subscribe opens the topic's pub/sub channels and confirms the subscription
// before handing the handle out.
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (interfaces.Channel, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	pubsub := t.client.Subscribe(ctx, broadcastChannelPrefix+topic, presenceChannelPrefix+topic)
	// FUNCTIONAL DISCOVERY: Receive confirms the SUBSCRIBE completed; without
	// it a handle could be handed out before the server registered interest
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe topic %s: %w", topic, err)
	}

	ch := &redisChannel{
		transport:         t,
		topic:             topic,
		logger:            t.logger.WithField("topic", topic),
		pubsub:            pubsub,
		broadcastHandlers: make(map[string]interfaces.BroadcastHandler),
		done:              make(chan struct{}),
	}
	go ch.readLoop(pubsub.Channel())

	return ch, nil
}

// presenceWire is the on-wire shape of a presence event.
type presenceWire struct {
	Kind   interfaces.PresenceEventKind `json:"kind"`
	Record types.PresenceRecord         `json:"record"`
}

type redisChannel struct {
	transport *RedisTransport
	topic     string
	logger    *logrus.Entry
	pubsub    *redis.PubSub

	mu                sync.RWMutex
	broadcastHandlers map[string]interfaces.BroadcastHandler
	presenceHandlers  []interfaces.PresenceHandler
	tracked           *types.PresenceRecord

	done      chan struct{}
	closeOnce sync.Once
}

func (c *redisChannel) readLoop(msgs <-chan *redis.Message) {
	for msg := range msgs {
		switch {
		case strings.HasPrefix(msg.Channel, broadcastChannelPrefix):
			var env types.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				c.logger.WithError(err).Warn("dropped malformed broadcast")
				continue
			}
			c.fireBroadcast(&env)
		case strings.HasPrefix(msg.Channel, presenceChannelPrefix):
			var ev presenceWire
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.WithError(err).Warn("dropped malformed presence event")
				continue
			}
			c.firePresence(interfaces.PresenceEvent{Kind: ev.Kind, Record: ev.Record})
		}
	}
}

func (c *redisChannel) released() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *redisChannel) OnBroadcast(event string, handler interfaces.BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastHandlers[event] = handler
}

func (c *redisChannel) OnPresence(handler interfaces.PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presenceHandlers = append(c.presenceHandlers, handler)
}

// Track stores the presence record in the topic hash, refreshes its TTL and
// publishes a join event, then replays the existing roster to local handlers.
func (c *redisChannel) Track(ctx context.Context, record types.PresenceRecord) error {
	if c.released() {
		return interfaces.ErrChannelReleased
	}
	if !types.IsValidUserID(record.UserID) {
		return types.ErrInvalidUserID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}

	key := presenceHashPrefix + c.topic
	pipe := c.transport.client.TxPipeline()
	pipe.HSet(ctx, key, record.UserID, data)
	pipe.Expire(ctx, key, c.transport.presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track presence: %w", err)
	}

	c.mu.Lock()
	rec := record
	c.tracked = &rec
	c.mu.Unlock()

	c.publishPresence(ctx, interfaces.PresenceJoin, record)

	// FUNCTIONAL DISCOVERY: Roster replay at Track time (after handler
	// registration) lets a late joiner converge without racing subscription
	state, err := c.PresenceState(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("presence replay skipped")
		return nil
	}
	for userID, existing := range state {
		if userID == record.UserID {
			continue
		}
		c.firePresence(interfaces.PresenceEvent{Kind: interfaces.PresenceSync, Record: existing})
	}
	return nil
}

// Send publishes the envelope to the topic's broadcast channel.
// At-most-once: Redis pub/sub offers no delivery guarantee and none is wanted.
func (c *redisChannel) Send(ctx context.Context, envelope *types.Envelope) error {
	if c.released() {
		return interfaces.ErrChannelReleased
	}
	if err := envelope.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.transport.client.Publish(ctx, broadcastChannelPrefix+c.topic, data).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// PresenceState reads the topic hash and refreshes its TTL.
func (c *redisChannel) PresenceState(ctx context.Context) (map[string]types.PresenceRecord, error) {
	if c.released() {
		return nil, interfaces.ErrChannelReleased
	}

	key := presenceHashPrefix + c.topic
	fields, err := c.transport.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence state: %w", err)
	}
	c.transport.client.Expire(ctx, key, c.transport.presenceTTL)

	state := make(map[string]types.PresenceRecord, len(fields))
	for userID, raw := range fields {
		var rec types.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			c.logger.WithField("user", userID).WithError(err).Warn("dropped malformed presence record")
			continue
		}
		state[userID] = rec
	}
	return state, nil
}

// Release withdraws presence, publishes a leave event and closes the pub/sub
// subscription. Safe to call multiple times.
func (c *redisChannel) Release() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.RLock()
		tracked := c.tracked
		c.mu.RUnlock()

		// Release must work even when the caller's context is gone
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if tracked != nil {
			key := presenceHashPrefix + c.topic
			if delErr := c.transport.client.HDel(ctx, key, tracked.UserID).Err(); delErr != nil {
				c.logger.WithError(delErr).Warn("presence withdrawal failed")
			}
			c.publishPresence(ctx, interfaces.PresenceLeave, *tracked)
		}

		err = c.pubsub.Close()
	})
	return err
}

func (c *redisChannel) publishPresence(ctx context.Context, kind interfaces.PresenceEventKind, record types.PresenceRecord) {
	data, err := json.Marshal(presenceWire{Kind: kind, Record: record})
	if err != nil {
		c.logger.WithError(err).Warn("presence event marshal failed")
		return
	}
	if err := c.transport.client.Publish(ctx, presenceChannelPrefix+c.topic, data).Err(); err != nil {
		c.logger.WithError(err).Warn("presence event publish failed")
	}
}

func (c *redisChannel) fireBroadcast(env *types.Envelope) {
	c.mu.RLock()
	handler := c.broadcastHandlers[env.Event]
	c.mu.RUnlock()
	if handler != nil {
		handler(env)
	}
}

func (c *redisChannel) firePresence(ev interfaces.PresenceEvent) {
	c.mu.RLock()
	handlers := make([]interfaces.PresenceHandler, len(c.presenceHandlers))
	copy(handlers, c.presenceHandlers)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"classync/internal/config"
	"classync/internal/realtime"
	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables consistent
// WebSocket settings across handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the fronting proxy
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// TokenVerifier authenticates gateway handshakes.
type TokenVerifier interface {
	ParsePrincipal(token string) (*interfaces.Principal, error)
}

// Handler bridges browser websockets onto the channel transport: inbound
// client envelopes become channel broadcasts, channel broadcasts and presence
// events become websocket frames.
type Handler struct {
	transport interfaces.Transport
	verifier  TokenVerifier
	registry  *Registry
	cfg       *config.GatewayConfig
	logger    *logrus.Entry
}

// NewHandler creates a gateway handler.
func NewHandler(transport interfaces.Transport, verifier TokenVerifier, registry *Registry, cfg *config.GatewayConfig, logger *logrus.Logger) *Handler {
	return &Handler{
		transport: transport,
		verifier:  verifier,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.WithField("component", "gateway"),
	}
}

// serverMessage is the frame shape pushed to browser clients.
type serverMessage struct {
	Type     string                    `json:"type"` // "broadcast" | "presence"
	Envelope *types.Envelope           `json:"envelope,omitempty"`
	Presence *interfaces.PresenceEvent `json:"presence,omitempty"`
}

// clientMessage is the frame shape accepted from browser clients. Sender
// attribution is never taken from the client; the gateway stamps it.
type clientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// HandleWebSocket validates the handshake, upgrades, subscribes the client
// onto its room channel and starts the bridging pumps.
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters, token,
// upgrade, subscribe) keeps invalid connections from consuming channel
// resources
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	token := r.URL.Query().Get("token")
	if roomID == "" || token == "" {
		http.Error(w, "Missing required query parameters: room, token", http.StatusBadRequest)
		return
	}
	if !types.IsValidRoomID(roomID) {
		http.Error(w, "Invalid room format", http.StatusBadRequest)
		return
	}

	principal, err := h.verifier.ParsePrincipal(token)
	if err != nil {
		h.logger.WithError(err).Debug("handshake rejected: bad token")
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := newConn(ws, principal.ID, principal.Role, roomID, principal.Name, h.cfg.SendBuffer, h.cfg.WriteTimeout)

	if err := h.registry.Register(conn); err != nil {
		h.logger.WithError(err).Warn("connection registration failed")
		_ = conn.Close()
		return
	}

	channel, err := h.transport.Subscribe(r.Context(), realtime.RoomTopic(roomID))
	if err != nil {
		h.logger.WithError(err).Error("room subscribe failed")
		h.registry.Unregister(conn)
		_ = conn.Close()
		return
	}

	h.attachChannel(conn, channel)

	record := types.PresenceRecord{
		UserID:   principal.ID,
		UserRole: principal.Role,
		Name:     principal.Name,
		JoinedAt: time.Now(),
	}
	if err := channel.Track(r.Context(), record); err != nil {
		h.logger.WithError(err).Error("presence track failed")
		_ = channel.Release()
		h.registry.Unregister(conn)
		_ = conn.Close()
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user": principal.ID,
		"role": principal.Role,
		"room": roomID,
	}).Info("client connected")

	go h.readPump(conn, channel)
}

// attachChannel forwards channel traffic to the websocket. Registration
// happens before Track so the client sees its own roster replay.
func (h *Handler) attachChannel(conn *Conn, channel interfaces.Channel) {
	forward := func(env *types.Envelope) {
		if err := conn.WriteJSON(serverMessage{Type: "broadcast", Envelope: env}); err != nil {
			h.logger.WithError(err).WithField("user", conn.userID).Debug("broadcast frame dropped")
		}
	}
	channel.OnBroadcast(types.EventWhiteboardUpdate, forward)
	channel.OnBroadcast(types.EventTabChange, forward)
	channel.OnBroadcast(types.EventSlideChange, forward)
	channel.OnPresence(func(ev interfaces.PresenceEvent) {
		if err := conn.WriteJSON(serverMessage{Type: "presence", Presence: &ev}); err != nil {
			h.logger.WithError(err).WithField("user", conn.userID).Debug("presence frame dropped")
		}
	})
}

// readPump consumes client frames until the connection dies, then tears the
// bridge down.
func (h *Handler) readPump(conn *Conn, channel interfaces.Channel) {
	defer func() {
		_ = channel.Release()
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.logger.WithField("user", conn.userID).Info("client disconnected")
	}()

	// 60-second read deadline with 30-second pings keeps half-dead
	// classroom connections from lingering
	if err := conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return
	}
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// FUNCTIONAL DISCOVERY: Per-connection limiter; one scribbling client
	// cannot starve the room's channel
	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).WithField("user", conn.userID).Debug("websocket read error")
			}
			return
		}

		if !limiter.Allow() {
			h.logger.WithField("user", conn.userID).Warn("client frame dropped: rate limit exceeded")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.WithField("user", conn.userID).Warn("client frame dropped: malformed JSON")
			continue
		}
		if !types.IsValidEvent(msg.Event) {
			h.logger.WithFields(logrus.Fields{"user": conn.userID, "event": msg.Event}).Warn("client frame dropped: unknown event")
			continue
		}
		// Authority gating at the edge, before the envelope touches the
		// channel; the engine re-checks on receipt (defense in depth)
		if !types.CanOriginate(conn.role, msg.Event) {
			h.logger.WithFields(logrus.Fields{"user": conn.userID, "event": msg.Event}).Warn("client frame dropped: teacher authority required")
			continue
		}

		env := &types.Envelope{
			Event:    msg.Event,
			SenderID: conn.userID,
			Payload:  msg.Payload,
			SentAt:   time.Now(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
		if err := channel.Send(ctx, env); err != nil {
			h.logger.WithError(err).WithField("event", msg.Event).Warn("channel send failed")
		}
		cancel()
	}
}

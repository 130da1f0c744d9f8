// Command classroom runs one classroom participant headlessly: it
// authenticates, creates or joins the room's session, connects the
// synchronization engine, and tears both down on exit. Useful for soak
// testing a room and as the reference composition of the core packages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"classync/internal/auth"
	"classync/internal/config"
	"classync/internal/initializer"
	"classync/internal/notify"
	"classync/internal/realtime"
	"classync/internal/session"
	"classync/internal/transport"
	"classync/pkg/interfaces"
	"classync/pkg/types"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("CLASSYNC_LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	roomID := os.Getenv("CLASSYNC_ROOM_ID")
	userID := os.Getenv("CLASSYNC_USER_ID")
	role := types.Role(os.Getenv("CLASSYNC_USER_ROLE"))
	name := os.Getenv("CLASSYNC_USER_NAME")
	if !types.IsValidRoomID(roomID) || !types.IsValidUserID(userID) || !types.IsValidRole(role) {
		return fmt.Errorf("CLASSYNC_ROOM_ID, CLASSYNC_USER_ID and CLASSYNC_USER_ROLE must be set and valid")
	}

	var channelTransport interfaces.Transport
	var store interfaces.SessionStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer client.Close()
		channelTransport = transport.NewRedisTransport(client, logger, cfg.Redis.PresenceTTL)
		store = session.NewRedisStore(client, logger, cfg.Redis.SessionTTL)
	} else {
		// Without Redis a lone participant still works; there is just
		// nobody else on the in-process broker to talk to
		channelTransport = transport.NewMemoryBroker(logger)
		store = session.NewMemoryStore()
	}

	notifier := notify.NewLogNotifier(logger)
	provider := auth.NewStaticProvider(&interfaces.Principal{ID: userID, Role: role, Name: name})

	sessions, err := session.NewManager(store, notifier, logger, roomID, userID, role)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	engine, err := realtime.NewEngine(channelTransport, notifier, logger, realtime.Config{
		RoomID:         roomID,
		UserID:         userID,
		Role:           role,
		DisplayName:    name,
		ConnectTimeout: cfg.Sync.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("sync engine: %w", err)
	}

	init := initializer.New(provider, sessions, engine, logger, nil, cfg.Sync.StartupDelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The engine connects independently of session entry; neither blocks
	// or depends on the other
	go func() {
		if err := engine.Connect(ctx); err != nil {
			logger.WithError(err).Error("engine connect failed")
		}
	}()
	if err := init.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalCh
	logger.WithField("signal", sig.String()).Info("leaving classroom")

	if err := sessions.LeaveSession(context.Background()); err != nil {
		logger.WithError(err).Warn("leave session failed")
	}
	init.Shutdown()
	return nil
}

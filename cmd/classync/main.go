// Command classync runs the realtime classroom gateway: it bridges browser
// websockets onto the channel transport that carries presence and broadcast
// events for each classroom.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"classync/internal/auth"
	"classync/internal/config"
	"classync/internal/gateway"
	"classync/internal/transport"
	"classync/pkg/interfaces"
)

// Application coordinates all gateway components.
// FUNCTIONAL DISCOVERY: Component initialization follows strict dependency
// order: config, backend (Redis or memory), registry, handler, HTTP
type Application struct {
	cfg         *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	registry    *gateway.Registry
	httpServer  *http.Server
}

// NewApplication assembles the gateway from configuration.
func NewApplication(cfg *config.Config, logger *logrus.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("CLASSYNC_JWT_SECRET is required for the gateway")
	}

	app := &Application{cfg: cfg, logger: logger}

	// An empty Redis address keeps everything in process: single-node
	// classrooms and local development need no external services. The
	// gateway only relays; session records are managed by participants,
	// so no session store is wired here.
	var channelTransport interfaces.Transport
	if cfg.Redis.Addr != "" {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		channelTransport = transport.NewRedisTransport(app.redisClient, logger, cfg.Redis.PresenceTTL)
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis transport")
	} else {
		channelTransport = transport.NewMemoryBroker(logger)
		logger.Info("using in-memory transport")
	}

	verifier := auth.NewJWTProvider([]byte(cfg.Auth.JWTSecret), nil)
	app.registry = gateway.NewRegistry(logger)
	handler := gateway.NewHandler(channelTransport, verifier, app.registry, cfg.Gateway, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	mux.HandleFunc("/health", app.handleHealth)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return app, nil
}

func (app *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"gateway": app.registry.Stats(),
	})
}

// Start runs the HTTP server and confirms it came up.
func (app *Application) Start(ctx context.Context) error {
	app.logger.WithField("addr", app.httpServer.Addr).Info("starting classync gateway")

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("classync gateway started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down classync gateway")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.WithError(err).Warn("HTTP shutdown error")
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.WithError(err).Warn("redis close error")
		}
	}
	app.logger.Info("classync gateway shutdown complete")
	return nil
}

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
	app, err := NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		logger.WithField("signal", sig.String()).Info("shutting down gracefully")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return app.Stop(shutdownCtx)
	}
}

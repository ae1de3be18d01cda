package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/config"
	"realtime-chat/internal/database"
	"realtime-chat/internal/dispatch"
	"realtime-chat/internal/handlers"
	"realtime-chat/internal/notify"
	"realtime-chat/internal/presence"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/services"
	"realtime-chat/internal/websocket"
	"realtime-chat/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	envFile   string
	logLevel  string
	logFormat string
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:  "chat-server",
		Usage: "Real-time chat server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "path to an env file loaded before the environment is read",
				Sources:     cli.EnvVars("ENV_FILE"),
				Value:       ".env",
				Destination: &f.envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides LOG_LEVEL",
				Destination: &f.logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (console, json); overrides LOG_FORMAT",
				Destination: &f.logFormat,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "create the tables or indexes of the configured store and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := f.load()
					if err != nil {
						return err
					}
					db, err := openStore(ctx, cfg.Database)
					if err != nil {
						return err
					}
					defer db.Close()
					logger.Info("Store %s migrated", cfg.Database.Driver)
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("%v", err)
	}
}

func (f *flags) load() (*config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := logger.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// openStore connects the configured persistence backend and applies its schema.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (database.Database, error) {
	var (
		db  database.Database
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = database.NewPostgresDB(ctx, cfg.URL)
	case "mongo":
		db, err = database.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "memory":
		logger.Warn("Using the in-memory store; nothing survives a restart")
		db = database.NewMemoryDB()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if m, ok := db.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// openNotifier returns the offline notification backend and a function
// releasing its connection.
func openNotifier(ctx context.Context, cfg config.NotifierConfig) (notify.Notifier, func(), error) {
	switch cfg.Driver {
	case "redis":
		client, err := notify.NewRedisClient(ctx, notify.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Offline notifications queued on redis list %s", cfg.MailQueueKey)
		return notify.NewRedisQueue(client, cfg.MailQueueKey, cfg.PreviewLength), func() { client.Close() }, nil

	case "nats":
		conn, err := notify.ConnectNATS(cfg.NATSURL, "realtime-chat")
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Offline notifications published on nats subject %s", cfg.NATSSubject)
		return notify.NewNATSPublisher(conn, cfg.NATSSubject, cfg.PreviewLength), func() { conn.Drain() }, nil
	}

	return notify.NewLogNotifier(logger.GlobalLogger.With("notify"), cfg.PreviewLength), func() {}, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	notifier, closeNotifier, err := openNotifier(ctx, cfg.Notifier)
	if err != nil {
		return fmt.Errorf("failed to open notifier: %w", err)
	}
	defer closeNotifier()

	// Initialize services
	registry := presence.NewRegistry(logger.GlobalLogger.With("presence"))
	hub := websocket.NewHub(cfg.WebSocket)
	authService := auth.NewService(db, cfg)
	roomService := services.NewRoomService(db, registry)
	dispatcher := dispatch.New(registry, hub, db, roomService, notifier, dispatch.Config{
		PersistTimeout: cfg.Dispatch.PersistTimeout,
		NotifyTimeout:  cfg.Dispatch.NotifyTimeout,
		ImageKeySuffix: cfg.Dispatch.ImageKeySuffix,
	}, logger.GlobalLogger.With("dispatch"))
	controller := realtime.NewController(registry, hub, dispatcher, roomService, realtime.Config{
		AckMode:    cfg.Dispatch.AckMode,
		AckTimeout: cfg.Dispatch.PersistTimeout + cfg.Dispatch.NotifyTimeout,
	}, logger.GlobalLogger.With("realtime"))

	routes := handlers.Routes{
		Auth:      handlers.NewAuthHandlers(authService),
		Rooms:     handlers.NewRoomHandlers(roomService, authService),
		WebSocket: handlers.NewWebSocketHandlers(authService, hub, controller),
	}
	if cfg.Server.DebugEndpoints {
		routes.Debug = handlers.NewDebugHandlers(registry, hub)
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      routes.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started on http://localhost%s (store=%s, notifier=%s, ack=%s)",
			cfg.Server.Port, cfg.Database.Driver, cfg.Notifier.Driver, cfg.Dispatch.AckMode)
		logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("Hub shutdown: %v", err)
	}
	// Let in-flight messages reach the store and their notifications go out.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("Pending deliveries abandoned: %v", err)
	}
	if err := controller.Wait(shutdownCtx); err != nil {
		logger.Warn("Pending acks abandoned: %v", err)
	}

	logger.Info("Server stopped")
	return nil
}

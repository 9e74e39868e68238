package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/ludoserver/broadcast"
	"github.com/wfunc/ludoserver/config"
	"github.com/wfunc/ludoserver/lock"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/monitor"
	"github.com/wfunc/ludoserver/persistence"
	"github.com/wfunc/ludoserver/room"
	"github.com/wfunc/ludoserver/rpc"
	"github.com/wfunc/ludoserver/server"
	"github.com/wfunc/ludoserver/services"
	"github.com/wfunc/ludoserver/session"
	"github.com/wfunc/ludoserver/timer"
	"github.com/wfunc/ludoserver/turn"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Init("info", false)
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, gormStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()
	logger.Log.Infow("room store ready", "driver", cfg.Storage.Driver)

	var recorder *services.RecordService
	if cfg.Storage.RecordGames {
		if gormStore == nil {
			if gormStore, err = persistence.NewGormPostgreSQL(cfg.Database.Postgres.DSN()); err != nil {
				logger.Log.Fatalf("Failed to connect to database: %v", err)
			}
			defer gormStore.Close()
		}
		recorder = services.NewRecordService(gormStore.DB())
		logger.Log.Info("Game records enabled.")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mon := monitor.NewMonitor("ludo", reg)
	mon.PublishExpvar()

	timers := timer.NewTimerManager(time.Second)
	defer timers.Stop()

	sessions := session.NewManager()
	opts := room.Options{
		Store:       store,
		Broadcaster: broadcast.NewSessionBroadcaster(sessions),
		Metrics:     mon,
		Settings:    turn.Settings{MoveTime: cfg.Game.MoveTime, GameDuration: cfg.Game.GameDuration},
		MinPlayers:  cfg.Game.MinPlayers,
		IdleTimeout: cfg.Game.RoomIdleTimeout,
		Timers:      timers,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}

	var relay *broadcast.RedisRelay
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		relay = broadcast.NewRedisRelay(client, cfg.Redis.Channel, uuid.NewString())
		opts.Locker = lock.NewRedisLocker(client, cfg.Redis.LockExpiry)
		opts.Publisher = relay
	}

	rooms := room.NewRoomManager(opts)
	defer rooms.Close()

	// commits made by other instances, or directly in the database
	if relay != nil {
		go func() {
			if err := relay.Run(ctx, rooms.Refresh); err != nil {
				logger.Log.Errorw("redis relay stopped", "error", err)
			}
		}()
	}
	if watcher, ok := store.(persistence.Watcher); ok && cfg.Storage.Driver != "memory" {
		go func() {
			if err := broadcast.FollowStore(ctx, watcher, rooms.Refresh); err != nil {
				logger.Log.Warnw("store change feed unavailable", "error", err)
			}
		}()
	}

	var stats rpc.StatsSource
	if recorder != nil {
		stats = recorder
	}
	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewRoomService(rooms, stats))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go func() {
		if err := rpcServer.Start(); err != nil {
			logger.Log.Errorw("rpc server stopped", "error", err)
		}
	}()

	// Initialize Game Server
	gameServer := server.NewGameServer(server.Options{
		Address:           cfg.Server.HTTPAddress,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		Rooms:             rooms,
		Sessions:          sessions,
		Issuer:            session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Timers:            timers,
		Observer:          mon,
		Metrics:           mon.Handler(),
	})

	errc := make(chan error, 1)
	go func() { errc <- gameServer.Start() }()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutting down.")
	case err := <-errc:
		if err != nil {
			logger.Log.Errorw("game server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Log.Warnw("http shutdown", "error", err)
	}
	rpcServer.Stop()
}

// openStore opens the configured room store. The gorm store is also
// returned so the game records can share its connection.
func openStore(ctx context.Context, cfg *config.Config) (persistence.Store, *persistence.GormPostgreSQL, error) {
	switch cfg.Storage.Driver {
	case "gorm":
		s, err := persistence.NewGormPostgreSQL(cfg.Database.Postgres.DSN())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		s, err := persistence.NewPostgreSQL(cfg.Database.Postgres.DSN())
		return s, nil, err
	case "sqlite":
		s, err := persistence.NewSQLite(cfg.Storage.SQLitePath)
		return s, nil, err
	case "mongo":
		m := cfg.Database.Mongo
		s, err := persistence.NewMongoStore(ctx, m.URI, m.Database, m.Collection)
		return s, nil, err
	default:
		return persistence.NewMemoryStore(), nil, nil
	}
}

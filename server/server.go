package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/room"
	"github.com/wfunc/ludoserver/session"
	"github.com/wfunc/ludoserver/timer"
)

// ConnectionObserver is told the number of open websocket connections.
type ConnectionObserver interface {
	SetOnlinePlayers(count int)
}

// Options wires a GameServer. Rooms, Sessions and Issuer are required.
type Options struct {
	Address           string
	HeartbeatInterval time.Duration
	RateLimit         float64
	RateBurst         int

	Rooms    *room.Manager
	Sessions *session.Manager
	Issuer   *session.Issuer
	Timers   *timer.TimerManager
	Observer ConnectionObserver
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Clock   func() time.Time
}

type GameServer struct {
	opts         Options
	engine       *gin.Engine
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	sweepID      int64
	shutdownChan chan struct{}
}

func NewGameServer(opts Options) *GameServer {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	gin.SetMode(gin.ReleaseMode)

	s := &GameServer{
		opts:         opts,
		engine:       gin.New(),
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()

	if opts.Timers != nil && opts.HeartbeatInterval > 0 {
		s.sweepID = opts.Timers.AddTimer(opts.HeartbeatInterval, opts.HeartbeatInterval, s.sweepSessions)
	}
	return s
}

func (s *GameServer) routes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/rooms", s.handleListRooms)
	api.GET("/rooms/joinable", s.handleJoinableRooms)
	api.POST("/rooms", s.handleCreateRoom)
	api.POST("/rooms/join", s.handleQuickJoin)
	api.GET("/rooms/:id/scores", s.handleRoomScores)
	api.DELETE("/rooms/:id", s.handleDeleteRoom)
	api.POST("/rooms/:id/join", s.handleJoinRoom)

	s.engine.GET("/ws", s.handleWebSocket)
	if s.opts.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
}

// Handler exposes the router, mainly for httptest.
func (s *GameServer) Handler() http.Handler {
	return s.engine
}

func (s *GameServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.opts.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every websocket connection.
func (s *GameServer) Shutdown(ctx context.Context) error {
	select {
	case <-s.shutdownChan:
		return nil
	default:
		close(s.shutdownChan)
	}
	if s.opts.Timers != nil && s.sweepID != 0 {
		s.opts.Timers.RemoveTimer(s.sweepID)
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, sess := range s.opts.Sessions.All() {
		_ = sess.Close()
	}
	return err
}

// sweepSessions drops connections that missed two heartbeats.
func (s *GameServer) sweepSessions() {
	stale := s.opts.Sessions.SweepIdle(s.opts.Clock(), 2*s.opts.HeartbeatInterval)
	if len(stale) > 0 {
		logger.Log.Infow("idle sessions closed", "count", len(stale))
		s.reportOnline()
	}
}

func (s *GameServer) reportOnline() {
	if s.opts.Observer != nil {
		s.opts.Observer.SetOnlinePlayers(s.opts.Sessions.Count())
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

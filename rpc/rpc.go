package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/scoring"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const ServiceName = "ludo.v1.RoomService"

const (
	listRoomsMethod      = "/" + ServiceName + "/ListRooms"
	getScoresMethod      = "/" + ServiceName + "/GetScores"
	getPlayerStatsMethod = "/" + ServiceName + "/GetPlayerStats"
	recentGamesMethod    = "/" + ServiceName + "/RecentGames"
)

const (
	defaultRecentGames = 10
	maxRecentGames     = 100
)

type ListRoomsRequest struct {
	JoinableOnly bool `json:"joinable_only"`
}

type ListRoomsResponse struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type GetScoresRequest struct {
	RoomID string `json:"room_id"`
}

type GetScoresResponse struct {
	RoomID  string                            `json:"room_id"`
	Started bool                              `json:"started"`
	Winner  models.Outcome                    `json:"winner"`
	Scores  map[board.Color]models.ScoreEntry `json:"scores"`
}

type GetPlayerStatsRequest struct {
	PlayerID string `json:"player_id"`
}

type RecentGamesRequest struct {
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
}

type RecentGamesResponse struct {
	Games []models.GameRecord `json:"games"`
}

// RoomServer is the server API of ludo.v1.RoomService.
type RoomServer interface {
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	GetScores(context.Context, *GetScoresRequest) (*GetScoresResponse, error)
	GetPlayerStats(context.Context, *GetPlayerStatsRequest) (*models.PlayerStats, error)
	RecentGames(context.Context, *RecentGamesRequest) (*RecentGamesResponse, error)
}

// RoomSource is the part of room.Manager the service reads from.
type RoomSource interface {
	ListRooms(ctx context.Context) ([]models.RoomSummary, error)
	JoinableRooms(ctx context.Context) ([]models.RoomSummary, error)
	Snapshot(ctx context.Context, roomID string) (*models.Room, error)
}

// StatsSource looks up recorded games; services.RecordService is one.
type StatsSource interface {
	GetPlayerStats(ctx context.Context, playerID string) (*models.PlayerStats, error)
	RecentGames(ctx context.Context, roomID string, limit int) ([]models.GameRecord, error)
}

// RoomService answers read-only queries about rooms.
type RoomService struct {
	rooms RoomSource
	stats StatsSource
}

// NewRoomService creates the service. stats may be nil when no database is
// configured; the record queries then answer Unimplemented.
func NewRoomService(rooms RoomSource, stats StatsSource) *RoomService {
	return &RoomService{rooms: rooms, stats: stats}
}

func (s *RoomService) ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error) {
	list := s.rooms.ListRooms
	if req.JoinableOnly {
		list = s.rooms.JoinableRooms
	}
	rooms, err := list(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListRoomsResponse{Rooms: rooms}, nil
}

func (s *RoomService) GetScores(ctx context.Context, req *GetScoresRequest) (*GetScoresResponse, error) {
	if req.RoomID == "" {
		return nil, status.Error(codes.InvalidArgument, "room_id is required")
	}
	doc, err := s.rooms.Snapshot(ctx, req.RoomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetScoresResponse{
		RoomID:  doc.ID,
		Started: doc.Started,
		Winner:  doc.Winner,
		Scores:  scoring.ScoreTable(doc),
	}, nil
}

func (s *RoomService) GetPlayerStats(ctx context.Context, req *GetPlayerStatsRequest) (*models.PlayerStats, error) {
	if s.stats == nil {
		return nil, status.Error(codes.Unimplemented, "player stats are not recorded")
	}
	if req.PlayerID == "" {
		return nil, status.Error(codes.InvalidArgument, "player_id is required")
	}
	stats, err := s.stats.GetPlayerStats(ctx, req.PlayerID)
	if err != nil {
		return nil, toStatus(err)
	}
	return stats, nil
}

// RecentGames lists the last finished games of a room, newest first.
func (s *RoomService) RecentGames(ctx context.Context, req *RecentGamesRequest) (*RecentGamesResponse, error) {
	if s.stats == nil {
		return nil, status.Error(codes.Unimplemented, "games are not recorded")
	}
	if req.RoomID == "" {
		return nil, status.Error(codes.InvalidArgument, "room_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRecentGames
	}
	limit = min(limit, maxRecentGames)

	games, err := s.stats.RecentGames(ctx, req.RoomID, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecentGamesResponse{Games: games}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrPlayerNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ServiceDesc describes ludo.v1.RoomService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRooms", Handler: listRoomsHandler},
		{MethodName: "GetScores", Handler: getScoresHandler},
		{MethodName: "GetPlayerStats", Handler: getPlayerStatsHandler},
		{MethodName: "RecentGames", Handler: recentGamesHandler},
	},
	Metadata: "ludo/v1/room_service",
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListRoomsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRoomsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomServer).ListRooms(ctx, req.(*ListRoomsRequest))
	})
}

func getScoresHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetScoresRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomServer).GetScores(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getScoresMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomServer).GetScores(ctx, req.(*GetScoresRequest))
	})
}

func getPlayerStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetPlayerStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomServer).GetPlayerStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getPlayerStatsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomServer).GetPlayerStats(ctx, req.(*GetPlayerStatsRequest))
	})
}

func recentGamesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecentGamesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomServer).RecentGames(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recentGamesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomServer).RecentGames(ctx, req.(*RecentGamesRequest))
	})
}

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
	address  string
}

// NewServer listens on addr and registers svc.
func NewServer(addr string, svc RoomServer) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServerWithListener(listener, svc), nil
}

func NewServerWithListener(listener net.Listener, svc RoomServer) *Server {
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls))
	g.RegisterService(&ServiceDesc, svc)

	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, h)

	return &Server{
		listener: listener,
		grpc:     g,
		health:   h,
		address:  listener.Addr().String(),
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls and closes the listener.
func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Log.Debugw("rpc", "method", info.FullMethod, "took", time.Since(start), "code", status.Code(err).String())
	return resp, err
}

// Client calls ludo.v1.RoomService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error) {
	out := new(ListRoomsResponse)
	if err := c.cc.Invoke(ctx, listRoomsMethod, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetScores(ctx context.Context, req *GetScoresRequest) (*GetScoresResponse, error) {
	out := new(GetScoresResponse)
	if err := c.cc.Invoke(ctx, getScoresMethod, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPlayerStats(ctx context.Context, req *GetPlayerStatsRequest) (*models.PlayerStats, error) {
	out := new(models.PlayerStats)
	if err := c.cc.Invoke(ctx, getPlayerStatsMethod, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentGames(ctx context.Context, req *RecentGamesRequest) (*RecentGamesResponse, error) {
	out := new(RecentGamesResponse)
	if err := c.cc.Invoke(ctx, recentGamesMethod, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

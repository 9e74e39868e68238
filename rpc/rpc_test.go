package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/persistence"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// storeSource serves rooms straight from a store.
type storeSource struct {
	store persistence.Store
}

func (s storeSource) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	return s.store.List(ctx)
}

func (s storeSource) JoinableRooms(ctx context.Context) ([]models.RoomSummary, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.RoomSummary
	for _, r := range all {
		if !r.Started && r.Players < models.MaxPlayers {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s storeSource) Snapshot(ctx context.Context, roomID string) (*models.Room, error) {
	return s.store.Load(ctx, roomID)
}

type fakeStats struct {
	players map[string]models.PlayerStats
	games   []models.GameRecord // newest first
}

func (f *fakeStats) GetPlayerStats(_ context.Context, playerID string) (*models.PlayerStats, error) {
	s, ok := f.players[playerID]
	if !ok {
		return nil, models.ErrPlayerNotFound
	}
	return &s, nil
}

func (f *fakeStats) RecentGames(_ context.Context, roomID string, limit int) ([]models.GameRecord, error) {
	var out []models.GameRecord
	for _, g := range f.games {
		if g.RoomID == roomID && len(out) < limit {
			out = append(out, g)
		}
	}
	return out, nil
}

func dialService(t *testing.T, store persistence.Store, stats StatsSource) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServerWithListener(lis, NewRoomService(storeSource{store: store}, stats))
	go func() { _ = srv.Start() }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })
	return cc
}

func seed(t *testing.T, store persistence.Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	open := models.NewRoom("open", "open", t0)
	_, err := open.AddPlayer("p1", "ann")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, open))

	started := models.NewRoom("started", "started", t0.Add(time.Minute))
	for _, c := range board.Colors {
		_, err := started.AddPlayer("p-"+string(c), string(c))
		require.NoError(t, err)
	}
	started.Started = true
	started.GetPawn(models.PawnID(board.Green, 0)).Score = 23
	require.NoError(t, store.Create(ctx, started))
}

func TestRoomService_ListRooms(t *testing.T) {
	store := persistence.NewMemoryStore()
	seed(t, store)
	client := NewClient(dialService(t, store, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all, err := client.ListRooms(ctx, &ListRoomsRequest{})
	require.NoError(t, err)
	require.Len(t, all.Rooms, 2)
	assert.Equal(t, "open", all.Rooms[0].ID)
	assert.Equal(t, "started", all.Rooms[1].ID)

	joinable, err := client.ListRooms(ctx, &ListRoomsRequest{JoinableOnly: true})
	require.NoError(t, err)
	require.Len(t, joinable.Rooms, 1)
	assert.Equal(t, "open", joinable.Rooms[0].ID)
	assert.Equal(t, 1, joinable.Rooms[0].Players)
}

func TestRoomService_GetScores(t *testing.T) {
	store := persistence.NewMemoryStore()
	seed(t, store)
	client := NewClient(dialService(t, store, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.GetScores(ctx, &GetScoresRequest{RoomID: "started"})
	require.NoError(t, err)
	assert.True(t, res.Started)
	require.Len(t, res.Scores, 4)
	assert.Equal(t, 23, res.Scores[board.Green].Score)
	assert.Equal(t, 2, res.Scores[board.Green].Captures)

	_, err = client.GetScores(ctx, &GetScoresRequest{RoomID: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetScores(ctx, &GetScoresRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_Health(t *testing.T) {
	cc := dialService(t, persistence.NewMemoryStore(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus())
}

func TestRoomService_GetPlayerStats(t *testing.T) {
	stats := &fakeStats{players: map[string]models.PlayerStats{
		"p1": {PlayerID: "p1", Name: "ann", TotalGames: 3, Wins: 2, BestScore: 41},
	}}
	client := NewClient(dialService(t, persistence.NewMemoryStore(), stats))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.GetPlayerStats(ctx, &GetPlayerStatsRequest{PlayerID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, stats.players["p1"], *res)

	_, err = client.GetPlayerStats(ctx, &GetPlayerStatsRequest{PlayerID: "p2"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	noStats := NewClient(dialService(t, persistence.NewMemoryStore(), nil))
	_, err = noStats.GetPlayerStats(ctx, &GetPlayerStatsRequest{PlayerID: "p1"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestRoomService_RecentGames(t *testing.T) {
	finished := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	stats := &fakeStats{}
	for i := 0; i < 12; i++ {
		stats.games = append(stats.games, models.GameRecord{
			RoomID:     "r1",
			Outcome:    models.OutcomeDraw,
			FinishedAt: finished.Add(-time.Duration(i) * time.Minute),
		})
	}
	client := NewClient(dialService(t, persistence.NewMemoryStore(), stats))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.RecentGames(ctx, &RecentGamesRequest{RoomID: "r1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, res.Games, 3)
	assert.True(t, finished.Equal(res.Games[0].FinishedAt))
	assert.Equal(t, models.OutcomeDraw, res.Games[0].Outcome)

	res, err = client.RecentGames(ctx, &RecentGamesRequest{RoomID: "r1"})
	require.NoError(t, err)
	assert.Len(t, res.Games, 10, "default limit")

	_, err = client.RecentGames(ctx, &RecentGamesRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	noStats := NewClient(dialService(t, persistence.NewMemoryStore(), nil))
	_, err = noStats.RecentGames(ctx, &RecentGamesRequest{RoomID: "r1"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

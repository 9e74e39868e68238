package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/lock"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/persistence"
	"github.com/wfunc/ludoserver/scoring"
	"github.com/wfunc/ludoserver/state"
	"github.com/wfunc/ludoserver/timer"
	"github.com/wfunc/ludoserver/turn"
)

// Options wires a Manager. Store and Broadcaster are required.
type Options struct {
	Store       persistence.Store
	Broadcaster Broadcaster
	Locker      lock.Locker
	Recorder    Recorder
	Publisher   Publisher
	Metrics     Metrics
	Settings    turn.Settings
	MinPlayers  int
	Dice        turn.Dice
	Clock       func() time.Time
	// Actors idle for longer are stopped; they respawn on the next action.
	IdleTimeout time.Duration
	Timers      *timer.TimerManager
}

// Manager 管理所有房间
type Manager struct {
	opts    Options
	rooms   map[string]*Room
	seen    map[string]int64     // last version broadcast per room
	dropped map[string]time.Time // rooms this instance deleted, until the store reports it
	mutex   sync.Mutex
	sweepID int64
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts Options) *Manager {
	if opts.Locker == nil {
		opts.Locker = lock.Nop{}
	}
	if opts.Dice == nil {
		opts.Dice = turn.RandomDice
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Settings.MoveTime <= 0 {
		opts.Settings = turn.DefaultSettings()
	}
	if opts.MinPlayers <= 0 {
		opts.MinPlayers = models.MaxPlayers
	}

	m := &Manager{
		opts:    opts,
		rooms:   make(map[string]*Room),
		seen:    make(map[string]int64),
		dropped: make(map[string]time.Time),
	}
	if opts.Timers != nil && opts.IdleTimeout > 0 {
		m.sweepID = opts.Timers.AddTimer(opts.IdleTimeout, opts.IdleTimeout/2, func() { m.EvictIdle() })
	}
	return m
}

func (m *Manager) now() time.Time {
	return m.opts.Clock()
}

// CreateRoom 创建一个新房间
func (m *Manager) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	id := uuid.NewString()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Room " + id[:8]
	}

	doc := models.NewRoom(id, name, m.now())
	if err := m.opts.Store.Create(ctx, doc); err != nil {
		return nil, err
	}
	logger.Log.Infow("room created", "room_id", id, "name", name)
	m.markSeen(id, doc.Version)
	m.publishRooms(ctx)
	return doc, nil
}

// ListRooms returns every stored room, oldest first.
func (m *Manager) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	return m.opts.Store.List(ctx)
}

// JoinableRooms lists rooms that have a free seat and did not start.
func (m *Manager) JoinableRooms(ctx context.Context) ([]models.RoomSummary, error) {
	all, err := m.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	joinable := make([]models.RoomSummary, 0, len(all))
	for _, s := range all {
		if !s.Started && s.Players < models.MaxPlayers {
			joinable = append(joinable, s)
		}
	}
	return joinable, nil
}

// FindAvailableRoom 查找一个可用的房间. It returns nil when every room is
// full or started.
func (m *Manager) FindAvailableRoom(ctx context.Context) (*models.RoomSummary, error) {
	joinable, err := m.JoinableRooms(ctx)
	if err != nil || len(joinable) == 0 {
		return nil, err
	}
	return &joinable[0], nil
}

// Snapshot reads the stored room without going through its actor.
func (m *Manager) Snapshot(ctx context.Context, roomID string) (*models.Room, error) {
	return m.opts.Store.Load(ctx, roomID)
}

// Scores returns the score table of a room.
func (m *Manager) Scores(ctx context.Context, roomID string) (map[board.Color]models.ScoreEntry, error) {
	doc, err := m.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return scoring.ScoreTable(doc), nil
}

// Join seats playerID in the room and returns the seat. A player already
// seated gets their seat back, also after the game started.
func (m *Manager) Join(ctx context.Context, roomID, playerID, name string) (*models.Player, error) {
	joinErr := m.Dispatch(ctx, roomID, playerID, state.Action{Type: network.EventRoomJoin, Name: name})
	if joinErr != nil && !errors.Is(joinErr, models.ErrGameStarted) {
		return nil, joinErr
	}
	doc, err := m.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p, _ := doc.GetPlayer(playerID)
	if p == nil {
		if joinErr != nil {
			return nil, joinErr
		}
		return nil, models.ErrNotInRoom
	}
	return p, nil
}

// QuickJoin seats playerID in the first joinable room, creating a room when
// none is left. Rooms filling up under it are skipped.
func (m *Manager) QuickJoin(ctx context.Context, playerID, name string) (string, *models.Player, error) {
	for attempt := 0; attempt < 3; attempt++ {
		available, err := m.FindAvailableRoom(ctx)
		if err != nil {
			return "", nil, err
		}
		var roomID string
		if available != nil {
			roomID = available.ID
		} else {
			doc, err := m.CreateRoom(ctx, "")
			if err != nil {
				return "", nil, err
			}
			roomID = doc.ID
		}

		p, err := m.Join(ctx, roomID, playerID, name)
		switch {
		case err == nil:
			return roomID, p, nil
		case errors.Is(err, models.ErrRoomFull),
			errors.Is(err, models.ErrGameStarted),
			errors.Is(err, models.ErrRoomNotFound):
			logger.Log.Debugw("quick join raced", "room_id", roomID, "error", err)
			continue
		default:
			return "", nil, err
		}
	}
	return "", nil, models.ErrRoomFull
}

// Dispatch routes an action to the room's actor, starting it if needed.
func (m *Manager) Dispatch(ctx context.Context, roomID, playerID string, action state.Action) error {
	for attempt := 0; attempt < 3; attempt++ {
		err := m.actor(roomID).Do(ctx, playerID, action)
		if !errors.Is(err, errRoomClosed) {
			return err
		}
	}
	return errRoomClosed
}

// DeleteRoom removes an empty room. A room with players is refused with
// models.ErrUnauthorized.
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	if err := m.Dispatch(ctx, roomID, "", state.Action{Type: ActionDelete}); err != nil {
		return err
	}
	m.RemoveRoom(roomID)
	return nil
}

func (m *Manager) actor(roomID string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if r, ok := m.rooms[roomID]; ok && !r.closed() {
		return r
	}
	r := newRoom(roomID, m)
	m.rooms[roomID] = r
	m.reportActive()
	return r
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		room.Close()
		delete(m.rooms, id)
	}
	delete(m.seen, id)
	m.reportActive()
}

// EvictIdle stops actors that saw no request within the idle timeout and
// returns how many were stopped.
func (m *Manager) EvictIdle() int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTimeout)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	evicted := 0
	for id, r := range m.rooms {
		if r.idleSince().Before(cutoff) {
			r.Close()
			delete(m.rooms, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Log.Debugw("idle rooms evicted", "count", evicted)
		m.reportActive()
	}
	return evicted
}

// droppedTTL bounds how long a delete of this instance waits for its echo
// on the change feed.
const droppedTTL = time.Minute

// Refresh rebroadcasts a room after a commit this instance did not make,
// e.g. one relayed from another instance or seen on the store's change feed.
func (m *Manager) Refresh(ctx context.Context, roomID string, version int64, deleted bool) {
	if deleted {
		own := m.takeDropped(roomID)
		m.RemoveRoom(roomID)
		if !own {
			m.publishRooms(ctx)
		}
		return
	}

	m.mutex.Lock()
	if m.seen[roomID] >= version {
		m.mutex.Unlock()
		return
	}
	m.seen[roomID] = version
	m.mutex.Unlock()

	doc, err := m.Snapshot(ctx, roomID)
	if err != nil {
		logger.Log.Warnw("refresh failed", "room_id", roomID, "error", err)
		return
	}
	r := &Room{ID: roomID, manager: m}
	r.broadcastSnapshot(doc)
	if doc.Concluded() {
		r.broadcast(network.EventWinner, doc.Winner)
	}
}

func (m *Manager) markSeen(roomID string, version int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if version > m.seen[roomID] {
		m.seen[roomID] = version
	}
}

// expectCommit marks version as seen before the save that produces it, so a
// change feed that is faster than the save returning cannot echo it back.
// It returns the mark to restore when the save fails.
func (m *Manager) expectCommit(roomID string, version int64) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	prev := m.seen[roomID]
	if version > prev {
		m.seen[roomID] = version
	}
	return prev
}

// cancelCommit undoes expectCommit after a failed save.
func (m *Manager) cancelCommit(roomID string, version, prev int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.seen[roomID] == version {
		m.seen[roomID] = prev
	}
}

// markDropped remembers a delete made here until the feed reports it.
func (m *Manager) markDropped(roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	for id, at := range m.dropped {
		if now.Sub(at) > droppedTTL {
			delete(m.dropped, id)
		}
	}
	m.dropped[roomID] = now
}

func (m *Manager) unmarkDropped(roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.dropped, roomID)
}

func (m *Manager) takeDropped(roomID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.dropped[roomID]
	delete(m.dropped, roomID)
	return ok
}

// publishRooms pushes the room list to every connection.
func (m *Manager) publishRooms(ctx context.Context) {
	list, err := m.ListRooms(ctx)
	if err != nil {
		logger.Log.Warnw("list rooms failed", "error", err)
		return
	}
	if err := m.opts.Broadcaster.BroadcastToAll(network.EventRoomList, list); err != nil {
		logger.Log.Warnw("room list broadcast failed", "error", err)
	}
}

// reportActive must be called with m.mutex held.
func (m *Manager) reportActive() {
	if m.opts.Metrics != nil {
		m.opts.Metrics.SetActiveRooms(len(m.rooms))
	}
}

// Close stops every actor and the idle sweep.
func (m *Manager) Close() {
	if m.opts.Timers != nil && m.sweepID != 0 {
		m.opts.Timers.RemoveTimer(m.sweepID)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id, r := range m.rooms {
		r.Close()
		delete(m.rooms, id)
	}
	m.reportActive()
}

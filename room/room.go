// room/room.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/persistence"
	"github.com/wfunc/ludoserver/scoring"
	"github.com/wfunc/ludoserver/state"
	"github.com/wfunc/ludoserver/turn"
)

// ActionDelete removes an empty room. It is not a websocket event.
const ActionDelete = "room:delete"

var errRoomClosed = errors.New("room actor closed")

type request struct {
	ctx      context.Context
	playerID string
	action   state.Action
	reply    chan error
}

// Room 是一个房间的 actor: one goroutine owning every mutation of the room,
// taking requests from its inbox in arrival order.
type Room struct {
	ID         string
	manager    *Manager
	inbox      chan request
	closeChan  chan struct{}
	closeOnce  sync.Once
	done       chan struct{}
	lastActive atomic.Int64
}

func newRoom(id string, manager *Manager) *Room {
	r := &Room{
		ID:        id,
		manager:   manager,
		inbox:     make(chan request, 64),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.touch()
	go r.loop()
	return r
}

// Do queues an action and waits for its result.
func (r *Room) Do(ctx context.Context, playerID string, action state.Action) error {
	r.touch()
	reply := make(chan error, 1)
	select {
	case r.inbox <- request{ctx: ctx, playerID: playerID, action: action, reply: reply}:
	case <-r.closeChan:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return errRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the actor after the request in progress.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.closeChan) })
}

func (r *Room) closed() bool {
	select {
	case <-r.closeChan:
		return true
	default:
		return false
	}
}

func (r *Room) touch() {
	r.lastActive.Store(r.manager.now().UnixNano())
}

func (r *Room) idleSince() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// loop 是房间的主循环
func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case req := <-r.inbox:
			req.reply <- r.process(req)
		case <-r.closeChan:
			return
		}
	}
}

func (r *Room) process(req request) error {
	start := time.Now()
	err := r.handle(req.ctx, req.playerID, req.action)
	if m := r.manager.opts.Metrics; m != nil {
		m.ObserveAction(req.action.Type, time.Since(start), err)
	}
	if err != nil {
		logger.Log.Debugw("action rejected", "room_id", r.ID, "player_id", req.playerID, "action", req.action.Type, "error", err)
	}
	return err
}

// handle runs one action: lock, load, lazy clocks, apply, save, broadcast.
func (r *Room) handle(ctx context.Context, playerID string, action state.Action) error {
	opts := &r.manager.opts
	unlock, err := opts.Locker.Lock(ctx, r.ID)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := opts.Store.Load(ctx, r.ID)
	if err != nil {
		return err
	}
	if action.Type == ActionDelete {
		return r.delete(ctx, doc)
	}

	tx := &txn{room: doc, now: r.manager.now(), opts: opts}
	tx.sm = state.Restore(tx)
	before := doc.Summary()
	wasConcluded := doc.Concluded()

	tx.sm.GetCurrentState().OnUpdate()

	var actionErr error
	if action.Type != network.EventRoomData {
		base, emitted := tx.room.Clone(), len(tx.events)
		actionErr = tx.sm.GetCurrentState().HandleAction(player(playerID), action)
		switch {
		case actionErr == nil:
			tx.touched = true
		case errors.Is(actionErr, state.ErrNoop):
			actionErr = nil
		default:
			// rejected: keep what the clocks did, drop the rest
			tx.room, tx.events = base, tx.events[:emitted]
		}
	}

	if tx.touched {
		if err := r.commit(ctx, tx, before, wasConcluded); err != nil {
			return err
		}
	}
	if action.Type == network.EventRoomData {
		r.sendData(tx.room, playerID, tx.now)
	}
	return actionErr
}

func (r *Room) commit(ctx context.Context, tx *txn, before models.RoomSummary, wasConcluded bool) error {
	opts := &r.manager.opts
	doc := tx.room
	doc.UpdatedAt = tx.now
	next := doc.Version + 1
	prev := r.manager.expectCommit(r.ID, next)
	if err := opts.Store.Save(ctx, doc); err != nil {
		r.manager.cancelCommit(r.ID, next, prev)
		if errors.Is(err, persistence.ErrVersionConflict) {
			// another instance committed first; show its state here
			r.manager.Refresh(ctx, r.ID, next, false)
		}
		return fmt.Errorf("save room %s: %w", r.ID, err)
	}
	r.manager.markSeen(r.ID, doc.Version)

	for _, ev := range tx.events {
		if ev.To == "" {
			r.broadcast(ev.Name, ev.Payload)
		} else {
			r.send(ev.To, ev.Name, ev.Payload)
		}
	}
	r.broadcastSnapshot(doc)

	if opts.Publisher != nil {
		if err := opts.Publisher.Publish(ctx, r.ID, doc.Version); err != nil {
			logger.Log.Warnw("publish commit failed", "room_id", r.ID, "error", err)
		}
	}
	if doc.Summary() != before {
		r.manager.publishRooms(ctx)
	}
	if !wasConcluded && doc.Concluded() {
		r.finished(ctx, doc, tx.now)
	}
	return nil
}

// delete removes the room once nobody is seated in it.
func (r *Room) delete(ctx context.Context, doc *models.Room) error {
	if len(doc.Players) > 0 {
		return fmt.Errorf("%w: room %s still has %d players", models.ErrUnauthorized, doc.ID, len(doc.Players))
	}
	r.manager.markDropped(doc.ID)
	if err := r.manager.opts.Store.Delete(ctx, doc.ID); err != nil {
		r.manager.unmarkDropped(doc.ID)
		return err
	}
	logger.Log.Infow("room deleted", "room_id", doc.ID)
	r.manager.publishRooms(ctx)
	return nil
}

func (r *Room) finished(ctx context.Context, doc *models.Room, now time.Time) {
	opts := &r.manager.opts
	if opts.Metrics != nil {
		opts.Metrics.GameFinished(doc.Winner)
	}
	if opts.Recorder == nil {
		return
	}
	record := models.GameRecord{
		RoomID:     doc.ID,
		Outcome:    doc.Winner,
		Players:    scoring.FinalResults(doc),
		StartedAt:  doc.StartedAt,
		FinishedAt: now,
	}
	if err := opts.Recorder.RecordGame(ctx, record); err != nil {
		logger.Log.Errorw("record game failed", "room_id", doc.ID, "error", err)
	}
}

// broadcastSnapshot sends the room document, and the scores once the game started.
func (r *Room) broadcastSnapshot(doc *models.Room) {
	r.broadcast(network.EventRoomData, doc)
	if doc.Started {
		r.broadcast(network.EventScores, scoring.ScoreTable(doc))
	}
}

// sendData answers room:data for one player.
func (r *Room) sendData(doc *models.Room, playerID string, now time.Time) {
	r.send(playerID, network.EventRoomData, doc)
	if !doc.Started {
		return
	}
	if doc.Concluded() {
		r.send(playerID, network.EventWinner, doc.Winner)
	}
	r.send(playerID, network.EventScores, scoring.ScoreTable(doc))
	r.send(playerID, network.EventTimeRemaining, int(turn.RemainingGameTime(doc, now).Seconds()))
}

func (r *Room) broadcast(event string, payload any) {
	if err := r.manager.opts.Broadcaster.BroadcastToRoom(r.ID, event, payload); err != nil {
		logger.Log.Warnw("broadcast failed", "room_id", r.ID, "event", event, "error", err)
	}
}

func (r *Room) send(playerID, event string, payload any) {
	if err := r.manager.opts.Broadcaster.SendToPlayer(r.ID, playerID, event, payload); err != nil {
		logger.Log.Warnw("send failed", "room_id", r.ID, "player_id", playerID, "event", event, "error", err)
	}
}

type player string

func (p player) GetID() string { return string(p) }

// txn is the state.RoomContext of a single action.
type txn struct {
	room    *models.Room
	now     time.Time
	opts    *Options
	sm      *state.BaseStateMachine
	events  []network.Event
	touched bool
}

func (t *txn) GetID() string                          { return t.room.ID }
func (t *txn) Room() *models.Room                     { return t.room }
func (t *txn) Now() time.Time                         { return t.now }
func (t *txn) Settings() turn.Settings                { return t.opts.Settings }
func (t *txn) Dice() turn.Dice                        { return t.opts.Dice }
func (t *txn) MinPlayers() int                        { return t.opts.MinPlayers }
func (t *txn) ChangeState(newState state.State) error { return t.sm.ChangeState(newState) }
func (t *txn) Emit(ev network.Event)                  { t.events = append(t.events, ev) }
func (t *txn) Touch()                                 { t.touched = true }

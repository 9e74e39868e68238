package state

import (
	"fmt"

	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
)

// 等待状态: players join, leave and toggle ready until everybody is ready.
type WaitingState struct {
	RoomStateBase
}

// NewWaitingState creates a new waiting state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   IDWaiting,
			Room: room,
		},
	}
}

// CanStart reports whether the lobby may turn into a game: enough players
// are seated and all of them are ready.
func CanStart(ctx RoomContext) bool {
	room := ctx.Room()
	return len(room.Players) >= ctx.MinPlayers() && room.AllReady()
}

func (s *WaitingState) HandleAction(player Player, action Action) error {
	room := s.Room.Room()
	id := player.GetID()

	switch action.Type {
	case network.EventRoomJoin:
		if p, _ := room.GetPlayer(id); p != nil {
			return ErrNoop
		}
		p, err := room.AddPlayer(id, action.Name)
		if err != nil {
			return err
		}
		logger.Log.Infow("player joined", "room_id", room.ID, "player_id", id, "color", p.Color)
		return nil

	case network.EventRoomLeave:
		if err := room.RemovePlayer(id); err != nil {
			return err
		}
		logger.Log.Infow("player left", "room_id", room.ID, "player_id", id)
		// the remaining players may all be ready already
		s.tryStart()
		return nil

	case network.EventRoomReady:
		p, _ := room.GetPlayer(id)
		if p == nil {
			return models.ErrNotInRoom
		}
		if p.Ready == action.Flag {
			return ErrNoop
		}
		p.Ready = action.Flag
		s.tryStart()
		return nil
	}
	return fmt.Errorf("%w: %s before the game started", models.ErrInvalidMove, action.Type)
}

func (s *WaitingState) tryStart() {
	if !CanStart(s.Room) {
		return
	}
	if err := s.Room.ChangeState(NewGamingState(s.Room)); err != nil {
		logger.Log.Warnw("game start rejected", "room_id", s.Room.GetID(), "error", err)
	}
}

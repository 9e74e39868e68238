package state

import (
	"time"

	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
)

// FinishedState is terminal: the outcome is fixed and only reads are served.
type FinishedState struct {
	RoomStateBase
	Outcome models.Outcome
}

func NewFinishedState(room RoomContext, outcome models.Outcome) *FinishedState {
	return &FinishedState{
		RoomStateBase: RoomStateBase{
			ID:   IDFinished,
			Room: room,
		},
		Outcome: outcome,
	}
}

// OnEnter records the outcome and clears everything that belongs to a
// running turn.
func (s *FinishedState) OnEnter() {
	room := s.Room.Room()
	room.Winner = s.Outcome
	room.RolledNumber = 0
	room.BonusRoll = false
	room.Paused = false
	room.PausedAt = time.Time{}
	room.DrawOffer = nil
	for i := range room.Players {
		room.Players[i].NowMoving = false
	}

	logger.Log.Infow("game finished", "room_id", room.ID, "winner", s.Outcome)
	s.Room.Emit(network.Event{Name: network.EventWinner, Payload: s.Outcome})
}

func (s *FinishedState) HandleAction(player Player, action Action) error {
	return models.ErrRoomConcluded
}

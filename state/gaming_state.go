package state

import (
	"fmt"
	"slices"

	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/rules"
	"github.com/wfunc/ludoserver/scoring"
	"github.com/wfunc/ludoserver/turn"
)

// GamingState 游戏进行状态
type GamingState struct {
	RoomStateBase
}

// NewGamingState 创建新的游戏状态
func NewGamingState(room RoomContext) *GamingState {
	return &GamingState{
		RoomStateBase: RoomStateBase{
			ID:   IDGaming,
			Room: room,
		},
	}
}

// OnEnter 进入游戏状态: the first seat gets the first turn and both clocks start.
func (s *GamingState) OnEnter() {
	room := s.Room.Room()
	now := s.Room.Now()
	turn.Start(room, now, s.Room.Settings())
	logger.Log.Infow("game started", "room_id", room.ID, "players", len(room.Players))

	if remaining := turn.RemainingGameTime(room, now); remaining > 0 {
		s.Room.Emit(network.Event{Name: network.EventTimeRemaining, Payload: int(remaining.Seconds())})
	}
}

// OnUpdate ends the game when its clock ran out, otherwise passes a turn
// whose deadline expired.
func (s *GamingState) OnUpdate() {
	room := s.Room.Room()
	now := s.Room.Now()

	if turn.GameClockExpired(room, now) {
		logger.Log.Infow("game clock expired", "room_id", room.ID)
		s.finish(scoring.ResolveOutcome(room, room.PlayerColors()))
		s.Room.Touch()
		return
	}
	if turn.ExpireIfDue(room, now, s.Room.Settings()) {
		logger.Log.Debugw("turn expired", "room_id", room.ID, "next", room.CurrentPlayer().Color)
		s.Room.Touch()
	}
}

// HandleAction handles actions from players.
func (s *GamingState) HandleAction(player Player, action Action) error {
	room := s.Room.Room()
	id := player.GetID()

	switch action.Type {
	case network.EventRoomJoin, network.EventRoomLeave, network.EventRoomReady:
		return models.ErrGameStarted
	}

	p, _ := room.GetPlayer(id)
	if p == nil {
		return fmt.Errorf("%w: %s is not seated in %s", models.ErrUnauthorized, id, room.ID)
	}

	now, settings := s.Room.Now(), s.Room.Settings()
	switch action.Type {
	case network.EventRoll:
		res, err := turn.Roll(room, id, s.Room.Dice(), now, settings)
		if err != nil {
			return err
		}
		s.Room.Emit(network.Event{Name: network.EventRoll, Payload: res.Number})
		return nil

	case network.EventMove:
		res, _, err := turn.Move(room, id, action.PawnID, now, settings)
		if err != nil {
			return err
		}
		if len(res.Captures) > 0 {
			logger.Log.Infow("pawn captured", "room_id", room.ID, "pawn", res.PawnID, "captures", len(res.Captures))
		}
		if rules.AllHome(room, res.Color) {
			logger.Log.Infow("all pawns home", "room_id", room.ID, "color", res.Color)
			s.finish(scoring.ResolveOutcome(room, room.PlayerColors()))
		}
		return nil

	case network.EventPause:
		if !turn.SetPaused(room, action.Flag, now) {
			return ErrNoop
		}
		s.Room.Emit(network.Event{Name: network.EventPaused, Payload: network.PausedPayload{Paused: room.Paused}})
		return nil

	case network.EventQuit:
		s.finish(models.OutcomeQuit)
		return nil
	}

	if turn.PhaseOf(room) == turn.PhasePaused {
		return models.ErrGamePaused
	}

	switch action.Type {
	case network.EventOfferDraw:
		if room.DrawOffer != nil {
			if room.DrawOffer.OfferedBy == id {
				return ErrNoop
			}
			return fmt.Errorf("%w: a draw is already offered", models.ErrInvalidMove)
		}
		room.DrawOffer = &models.DrawOffer{OfferedBy: id, OfferedByName: p.Name, AcceptedBy: []string{id}}
		s.Room.Emit(network.Event{
			Name:    network.EventDrawOffered,
			Payload: network.DrawOfferedPayload{OfferingPlayer: p.Name, PlayerID: id},
		})
		s.settleDraw()
		return nil

	case network.EventAcceptDraw:
		if room.DrawOffer == nil {
			return fmt.Errorf("%w: no draw offered", models.ErrInvalidMove)
		}
		if slices.Contains(room.DrawOffer.AcceptedBy, id) {
			return ErrNoop
		}
		room.DrawOffer.AcceptedBy = append(room.DrawOffer.AcceptedBy, id)
		s.Room.Emit(network.Event{
			Name:    network.EventDrawResponse,
			Payload: network.DrawResponsePayload{Accepted: true, PlayerID: id},
		})
		s.settleDraw()
		return nil

	case network.EventDeclineDraw:
		if room.DrawOffer == nil {
			return fmt.Errorf("%w: no draw offered", models.ErrInvalidMove)
		}
		room.DrawOffer = nil
		s.Room.Emit(network.Event{
			Name:    network.EventDrawResponse,
			Payload: network.DrawResponsePayload{Accepted: false, PlayerID: id},
		})
		return nil

	case network.EventSurrender:
		s.finish(surrenderOutcome(room, p.Color))
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", models.ErrInvalidMove, action.Type)
}

// settleDraw ends the game once every seated player accepted the offer.
func (s *GamingState) settleDraw() {
	room := s.Room.Room()
	for _, p := range room.Players {
		if !slices.Contains(room.DrawOffer.AcceptedBy, p.ID) {
			return
		}
	}
	s.finish(models.OutcomeDraw)
}

// surrenderOutcome hands the game to the only opponent left, or to the best
// score among the remaining players.
func surrenderOutcome(room *models.Room, loser board.Color) models.Outcome {
	var rest []board.Color
	for _, c := range room.PlayerColors() {
		if c != loser {
			rest = append(rest, c)
		}
	}
	switch len(rest) {
	case 0:
		return models.OutcomeQuit
	case 1:
		return models.ColorOutcome(rest[0])
	}
	return scoring.ResolveOutcome(room, rest)
}

func (s *GamingState) finish(outcome models.Outcome) {
	if err := s.Room.ChangeState(NewFinishedState(s.Room, outcome)); err != nil {
		logger.Log.Errorw("cannot finish game", "room_id", s.Room.GetID(), "error", err)
	}
}

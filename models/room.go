// models/room.go
package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/wfunc/ludoserver/board"
)

// MaxPlayers is the number of seats in a room.
const MaxPlayers = 4

// Room is the persisted document holding one game's complete state.
type Room struct {
	ID                string     `json:"id" bson:"_id"`
	Name              string     `json:"name" bson:"name"`
	Players           []Player   `json:"players" bson:"players"`
	Pawns             []Pawn     `json:"pawns" bson:"pawns"`
	Started           bool       `json:"started" bson:"started"`
	Paused            bool       `json:"paused" bson:"paused"`
	Winner            Outcome    `json:"winner" bson:"winner"`
	RolledNumber      int        `json:"rolledNumber" bson:"rolledNumber"`
	BonusRoll         bool       `json:"bonusRoll" bson:"bonusRoll"`
	MovingPlayerIndex int        `json:"movingPlayerIndex" bson:"movingPlayerIndex"`
	NextMoveTime      time.Time  `json:"nextMoveTime" bson:"nextMoveTime"`
	StartedAt         time.Time  `json:"startedAt" bson:"startedAt"`
	GameEndsAt        time.Time  `json:"gameEndsAt" bson:"gameEndsAt"`
	PausedAt          time.Time  `json:"pausedAt" bson:"pausedAt"`
	DrawOffer         *DrawOffer `json:"drawOffer,omitempty" bson:"drawOffer,omitempty"`
	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt" bson:"updatedAt"`
	Version           int64      `json:"version" bson:"version"`
}

// NewRoom returns an empty room with all 16 pawns in their bases.
func NewRoom(id, name string, now time.Time) *Room {
	r := &Room{
		ID:        id,
		Name:      name,
		Players:   make([]Player, 0, MaxPlayers),
		Pawns:     make([]Pawn, 0, len(board.Colors)*board.PawnsPerColor),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, c := range board.Colors {
		for slot := 0; slot < board.PawnsPerColor; slot++ {
			base := board.BasePos(c, slot)
			r.Pawns = append(r.Pawns, Pawn{
				ID:       PawnID(c, slot),
				Color:    c,
				Slot:     slot,
				BasePos:  base,
				Position: base,
			})
		}
	}
	return r
}

// PawnID builds the identifier of the pawn in slot of color c.
func PawnID(c board.Color, slot int) string {
	return fmt.Sprintf("%s-%d", c, slot)
}

// Clone returns a deep copy, so a snapshot can be handed out while the
// original keeps changing.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = slices.Clone(r.Players)
	c.Pawns = slices.Clone(r.Pawns)
	if r.DrawOffer != nil {
		offer := *r.DrawOffer
		offer.AcceptedBy = slices.Clone(r.DrawOffer.AcceptedBy)
		c.DrawOffer = &offer
	}
	return &c
}

// Full reports whether every seat is taken.
func (r *Room) Full() bool {
	return len(r.Players) >= MaxPlayers
}

// Joinable reports whether a new player may take a seat.
func (r *Room) Joinable() bool {
	return !r.Full() && !r.Started
}

// Concluded reports whether the game reached a terminal outcome.
func (r *Room) Concluded() bool {
	return r.Winner != OutcomeNone
}

// GetPlayer returns the player with the given id and its slot index.
func (r *Room) GetPlayer(playerID string) (*Player, int) {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return &r.Players[i], i
		}
	}
	return nil, -1
}

// PlayerByColor returns the player seated on color c.
func (r *Room) PlayerByColor(c board.Color) *Player {
	for i := range r.Players {
		if r.Players[i].Color == c {
			return &r.Players[i]
		}
	}
	return nil
}

// CurrentPlayer returns the player whose turn it is.
func (r *Room) CurrentPlayer() *Player {
	if r.MovingPlayerIndex < 0 || r.MovingPlayerIndex >= len(r.Players) {
		return nil
	}
	return &r.Players[r.MovingPlayerIndex]
}

// GetPawn returns the pawn with the given id.
func (r *Room) GetPawn(pawnID string) *Pawn {
	for i := range r.Pawns {
		if r.Pawns[i].ID == pawnID {
			return &r.Pawns[i]
		}
	}
	return nil
}

// PawnsOf returns pointers to the four pawns of color c.
func (r *Room) PawnsOf(c board.Color) []*Pawn {
	pawns := make([]*Pawn, 0, board.PawnsPerColor)
	for i := range r.Pawns {
		if r.Pawns[i].Color == c {
			pawns = append(pawns, &r.Pawns[i])
		}
	}
	return pawns
}

// PawnsAt returns pointers to the pawns standing on position.
func (r *Room) PawnsAt(position int) []*Pawn {
	var pawns []*Pawn
	for i := range r.Pawns {
		if r.Pawns[i].Position == position {
			pawns = append(pawns, &r.Pawns[i])
		}
	}
	return pawns
}

// PlayerColors returns the colors of the seated players in slot order.
func (r *Room) PlayerColors() []board.Color {
	colors := make([]board.Color, 0, len(r.Players))
	for _, p := range r.Players {
		colors = append(colors, p.Color)
	}
	return colors
}

// AddPlayer seats a new player on the next free color.
func (r *Room) AddPlayer(id, name string) (*Player, error) {
	if r.Started {
		return nil, ErrGameStarted
	}
	if r.Full() {
		return nil, ErrRoomFull
	}
	if p, _ := r.GetPlayer(id); p != nil {
		return p, nil
	}
	color, _ := board.SeatColor(len(r.Players))
	r.Players = append(r.Players, Player{ID: id, Name: name, Color: color})
	return &r.Players[len(r.Players)-1], nil
}

// RemovePlayer frees a seat before the game starts. Later players move up a
// slot and take the color of their new slot.
func (r *Room) RemovePlayer(id string) error {
	if r.Started {
		return ErrGameStarted
	}
	_, idx := r.GetPlayer(id)
	if idx < 0 {
		return ErrNotInRoom
	}
	r.Players = slices.Delete(r.Players, idx, idx+1)
	for i := range r.Players {
		r.Players[i].Color, _ = board.SeatColor(i)
	}
	return nil
}

// AllReady reports whether every seated player is ready.
func (r *Room) AllReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Summary returns the lobby view of the room.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:        r.ID,
		Name:      r.Name,
		Players:   len(r.Players),
		Started:   r.Started,
		Winner:    r.Winner,
		CreatedAt: r.CreatedAt,
	}
}

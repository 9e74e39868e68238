// Package rules decides which pawn moves are legal and applies them.
// Everything here is a pure function of the room passed in.
package rules

import (
	"fmt"

	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/models"
)

// Capture describes an opponent pawn sent back to base.
type Capture struct {
	PawnID   string      `json:"pawnId"`
	Color    board.Color `json:"color"`
	Position int         `json:"position"`
	Score    int         `json:"score"` // score transferred to the capturing pawn
}

// MoveResult is what ApplyMove did to the board.
type MoveResult struct {
	PawnID   string      `json:"pawnId"`
	Color    board.Color `json:"color"`
	From     int         `json:"from"`
	To       int         `json:"to"`
	Rolled   int         `json:"rolled"`
	LeftBase bool        `json:"leftBase"`
	Home     bool        `json:"home"`
	Captures []Capture   `json:"captures,omitempty"`
}

// CanPawnMove reports whether pawn may move with the rolled number, ignoring
// whose turn it is.
func CanPawnMove(pawn models.Pawn, rolled int) bool {
	if rolled < 1 || rolled > 6 {
		return false
	}
	if pawn.AtBase() {
		return rolled == 1 || rolled == 6
	}
	return pawn.Position+rolled <= board.MaxReachable(pawn.Color)
}

// IsMoveValid reports whether playerID may move pawn with the room's rolled
// number: it must be their turn, their pawn, and a legal pawn move.
func IsMoveValid(playerID string, pawn models.Pawn, room *models.Room) bool {
	if room == nil || room.RolledNumber == 0 {
		return false
	}
	current := room.CurrentPlayer()
	if current == nil || current.ID != playerID || current.Color != pawn.Color {
		return false
	}
	return CanPawnMove(pawn, room.RolledNumber)
}

// PlayerCanMove reports whether any pawn of color c can use the rolled number.
func PlayerCanMove(room *models.Room, c board.Color, rolled int) bool {
	for _, p := range room.PawnsOf(c) {
		if CanPawnMove(*p, rolled) {
			return true
		}
	}
	return false
}

// MovablePawns lists the ids of c's pawns that can use the rolled number.
func MovablePawns(room *models.Room, c board.Color, rolled int) []string {
	var ids []string
	for _, p := range room.PawnsOf(c) {
		if CanPawnMove(*p, rolled) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Destination returns the square pawn reaches with rolled, or false when the
// move is illegal.
func Destination(pawn models.Pawn, rolled int) (int, bool) {
	if !CanPawnMove(pawn, rolled) {
		return pawn.Position, false
	}
	return board.Advance(pawn.Color, pawn.Position, rolled)
}

// ApplyMove moves the pawn by the room's rolled number, credits the rolled
// number to its score and resolves captures on the destination. The caller
// checks IsMoveValid first; ApplyMove only re-checks pawn legality.
func ApplyMove(room *models.Room, pawnID string) (MoveResult, error) {
	pawn := room.GetPawn(pawnID)
	if pawn == nil {
		return MoveResult{}, fmt.Errorf("%w: unknown pawn %q", models.ErrInvalidMove, pawnID)
	}
	rolled := room.RolledNumber
	to, ok := Destination(*pawn, rolled)
	if !ok {
		return MoveResult{}, fmt.Errorf("%w: pawn %s cannot move %d", models.ErrInvalidMove, pawnID, rolled)
	}

	res := MoveResult{
		PawnID:   pawn.ID,
		Color:    pawn.Color,
		From:     pawn.Position,
		To:       to,
		Rolled:   rolled,
		LeftBase: pawn.AtBase(),
		Home:     board.IsHome(pawn.Color, to),
	}
	pawn.Position = to
	pawn.Score += rolled
	res.Captures = capturePawns(room, pawn)
	return res, nil
}

// capturePawns sends every opponent on striker's square back to base and
// moves their score onto striker. Total score is unchanged.
func capturePawns(room *models.Room, striker *models.Pawn) []Capture {
	pos := striker.Position
	if !board.IsShared(pos) || board.IsSafe(pos) {
		return nil
	}
	var captures []Capture
	for _, victim := range room.PawnsAt(pos) {
		if victim.Color == striker.Color {
			continue
		}
		captures = append(captures, Capture{
			PawnID:   victim.ID,
			Color:    victim.Color,
			Position: pos,
			Score:    victim.Score,
		})
		striker.Score += victim.Score
		victim.Score = 0
		victim.Position = victim.BasePos
	}
	return captures
}

// AllHome reports whether every pawn of c reached home.
func AllHome(room *models.Room, c board.Color) bool {
	pawns := room.PawnsOf(c)
	if len(pawns) == 0 {
		return false
	}
	for _, p := range pawns {
		if !p.Home() {
			return false
		}
	}
	return true
}

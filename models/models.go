// models/models.go
package models

import (
	"time"

	"github.com/wfunc/ludoserver/board"
)

// Outcome is the value of Room.Winner: empty while the game runs, a color
// when someone won, or one of the forced terminations.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeDraw Outcome = "draw"
	OutcomeQuit Outcome = "quit"
)

// ColorOutcome returns the outcome naming c as the winner.
func ColorOutcome(c board.Color) Outcome {
	return Outcome(c)
}

// Color returns the winning color, if the outcome names one.
func (o Outcome) Color() (board.Color, bool) {
	c, err := board.ParseColor(string(o))
	return c, err == nil
}

// Pawn is one of the 16 pieces on the board.
type Pawn struct {
	ID       string      `json:"id" bson:"id"`
	Color    board.Color `json:"color" bson:"color"`
	Slot     int         `json:"slot" bson:"slot"`
	BasePos  int         `json:"basePos" bson:"basePos"`
	Position int         `json:"position" bson:"position"`
	Score    int         `json:"score" bson:"score"`
}

// AtBase reports whether the pawn still waits in its base.
func (p Pawn) AtBase() bool {
	return p.Position == p.BasePos
}

// Home reports whether the pawn reached the last square of its track.
func (p Pawn) Home() bool {
	return board.IsHome(p.Color, p.Position)
}

// Player is a seat in a room.
type Player struct {
	ID        string      `json:"id" bson:"id"`
	Name      string      `json:"name" bson:"name"`
	Color     board.Color `json:"color" bson:"color"`
	Ready     bool        `json:"ready" bson:"ready"`
	NowMoving bool        `json:"nowMoving" bson:"nowMoving"`
}

// DrawOffer tracks a pending draw proposal. The offering player counts as
// having accepted.
type DrawOffer struct {
	OfferedBy     string   `json:"offeredBy" bson:"offeredBy"`
	OfferedByName string   `json:"offeredByName" bson:"offeredByName"`
	AcceptedBy    []string `json:"acceptedBy" bson:"acceptedBy"`
}

// ScoreEntry is one row of the score table sent to clients.
type ScoreEntry struct {
	PlayerName string      `json:"playerName"`
	Color      board.Color `json:"color"`
	Score      int         `json:"score"`
	Captures   int         `json:"captures"`
}

// RoomSummary is the lobby view of a room.
type RoomSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Players   int       `json:"players"`
	Started   bool      `json:"started"`
	Winner    Outcome   `json:"winner"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlayerResult is a player's line in a finished game record.
type PlayerResult struct {
	PlayerID string      `json:"player_id"`
	Name     string      `json:"name"`
	Color    board.Color `json:"color"`
	Outcome  string      `json:"outcome"` // win/lose/draw/quit
	Score    int         `json:"score"`
	Captures int         `json:"captures"`
}

// GameRecord 游戏记录模型
type GameRecord struct {
	RoomID     string         `json:"room_id"`
	Outcome    Outcome        `json:"outcome"`
	Players    []PlayerResult `json:"players"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Package scoring totals pawn scores per color and resolves winners.
package scoring

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/models"
)

// CapturePoints converts a player score into the derived capture count.
const CapturePoints = 10

// ErrUnresolvedTie is returned when several contenders share both the best
// score and the best capture count.
var ErrUnresolvedTie = errors.New("unresolved tie")

// ErrNoContenders is returned when there is nobody to pick a winner from.
var ErrNoContenders = errors.New("no contenders")

// TieError lists the colors left tied after every tie-break.
type TieError struct {
	Candidates []board.Color
}

func (e *TieError) Error() string {
	return fmt.Sprintf("unresolved tie between %v", e.Candidates)
}

func (e *TieError) Unwrap() error { return ErrUnresolvedTie }

// PlayerScore is the sum of the scores of c's four pawns.
func PlayerScore(room *models.Room, c board.Color) int {
	total := 0
	for _, p := range room.Pawns {
		if p.Color == c {
			total += p.Score
		}
	}
	return total
}

// CaptureCount is derived from the current score, not counted from capture
// events: floor(score / 10).
func CaptureCount(room *models.Room, c board.Color) int {
	return PlayerScore(room, c) / CapturePoints
}

// Scores returns the score of every seated player keyed by color.
func Scores(room *models.Room) map[board.Color]int {
	scores := make(map[board.Color]int, len(room.Players))
	for _, p := range room.Players {
		scores[p.Color] = PlayerScore(room, p.Color)
	}
	return scores
}

// ScoreTable is the score view sent to clients.
func ScoreTable(room *models.Room) map[board.Color]models.ScoreEntry {
	table := make(map[board.Color]models.ScoreEntry, len(room.Players))
	for _, p := range room.Players {
		table[p.Color] = models.ScoreEntry{
			PlayerName: p.Name,
			Color:      p.Color,
			Score:      PlayerScore(room, p.Color),
			Captures:   CaptureCount(room, p.Color),
		}
	}
	return table
}

// DetermineWinner picks the contender with the highest score, breaking ties
// by capture count. Contenders are considered in the order given. When a tie
// survives both criteria the error is a *TieError.
func DetermineWinner(room *models.Room, contenders []board.Color) (board.Color, error) {
	if len(contenders) == 0 {
		return "", ErrNoContenders
	}

	best := -1
	var top []board.Color
	for _, c := range contenders {
		switch s := PlayerScore(room, c); {
		case s > best:
			best, top = s, []board.Color{c}
		case s == best:
			top = append(top, c)
		}
	}
	if len(top) == 1 {
		return top[0], nil
	}

	bestCaptures := -1
	var finalists []board.Color
	for _, c := range top {
		switch n := CaptureCount(room, c); {
		case n > bestCaptures:
			bestCaptures, finalists = n, []board.Color{c}
		case n == bestCaptures:
			finalists = append(finalists, c)
		}
	}
	if len(finalists) == 1 {
		return finalists[0], nil
	}
	return "", &TieError{Candidates: slices.Clone(finalists)}
}

// ResolveOutcome turns DetermineWinner into a room outcome. An unresolved tie
// becomes a draw.
func ResolveOutcome(room *models.Room, contenders []board.Color) models.Outcome {
	winner, err := DetermineWinner(room, contenders)
	if err != nil {
		return models.OutcomeDraw
	}
	return models.ColorOutcome(winner)
}

// FinalResults builds the per-player lines of a finished game.
func FinalResults(room *models.Room) []models.PlayerResult {
	winner, won := room.Winner.Color()
	results := make([]models.PlayerResult, 0, len(room.Players))
	for _, p := range room.Players {
		outcome := "lose"
		switch {
		case won && p.Color == winner:
			outcome = "win"
		case room.Winner == models.OutcomeDraw:
			outcome = "draw"
		case room.Winner == models.OutcomeQuit:
			outcome = "quit"
		}
		results = append(results, models.PlayerResult{
			PlayerID: p.ID,
			Name:     p.Name,
			Color:    p.Color,
			Outcome:  outcome,
			Score:    PlayerScore(room, p.Color),
			Captures: CaptureCount(room, p.Color),
		})
	}
	return results
}

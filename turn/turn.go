// Package turn sequences players, rolls dice and keeps the per-turn and
// per-game clocks. Deadlines are checked lazily by callers; nothing here
// schedules a timer.
package turn

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/rules"
)

// Phase is where a room stands within the turn cycle.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseWaitingForRoll Phase = "waiting_for_roll"
	PhaseWaitingForMove Phase = "waiting_for_move"
	PhasePaused         Phase = "paused"
	PhaseEnded          Phase = "ended"
)

// PhaseOf derives the phase from the room flags.
func PhaseOf(room *models.Room) Phase {
	switch {
	case room.Concluded():
		return PhaseEnded
	case !room.Started:
		return PhaseLobby
	case room.Paused:
		return PhasePaused
	case room.RolledNumber == 0:
		return PhaseWaitingForRoll
	default:
		return PhaseWaitingForMove
	}
}

// Settings are the clock parameters of a game.
type Settings struct {
	MoveTime     time.Duration // how long a player has for one turn
	GameDuration time.Duration // total game time, 0 for unlimited
}

// DefaultSettings mirrors the defaults of config.yaml.
func DefaultSettings() Settings {
	return Settings{MoveTime: 15 * time.Second, GameDuration: 30 * time.Minute}
}

// Dice produces die values in [1,6].
type Dice interface {
	Roll() int
}

// DiceFunc adapts a function to Dice.
type DiceFunc func() int

func (f DiceFunc) Roll() int { return f() }

// RandomDice rolls a fair die. It is safe for concurrent use.
var RandomDice Dice = DiceFunc(func() int { return rand.IntN(6) + 1 })

// RollResult reports what a roll did.
type RollResult struct {
	Number  int      `json:"number"`
	Movable []string `json:"movable,omitempty"`
	Passed  bool     `json:"passed"` // no legal move, the turn went to the next player
}

// Start hands the first turn to the first seat and starts both clocks.
func Start(room *models.Room, now time.Time, s Settings) {
	room.Started = true
	room.StartedAt = now
	room.Paused = false
	room.PausedAt = time.Time{}
	room.MovingPlayerIndex = 0
	room.RolledNumber = 0
	room.BonusRoll = false
	room.NextMoveTime = now.Add(s.MoveTime)
	if s.GameDuration > 0 {
		room.GameEndsAt = now.Add(s.GameDuration)
	}
	syncNowMoving(room)
}

// Roll rolls for playerID. When no pawn of theirs can use the number the
// turn passes immediately.
func Roll(room *models.Room, playerID string, dice Dice, now time.Time, s Settings) (RollResult, error) {
	if err := checkActive(room); err != nil {
		return RollResult{}, err
	}
	current := room.CurrentPlayer()
	if current == nil || current.ID != playerID {
		return RollResult{}, fmt.Errorf("%w: not %s's turn", models.ErrInvalidMove, playerID)
	}
	if room.RolledNumber != 0 {
		return RollResult{}, fmt.Errorf("%w: already rolled %d", models.ErrInvalidMove, room.RolledNumber)
	}

	n := dice.Roll()
	if n < 1 || n > 6 {
		return RollResult{}, fmt.Errorf("dice returned %d", n)
	}
	room.RolledNumber = n
	res := RollResult{Number: n, Movable: rules.MovablePawns(room, current.Color, n)}
	if len(res.Movable) == 0 {
		Advance(room, now, s)
		res.Passed = true
	}
	return res, nil
}

// Move validates and applies a move for playerID, then either grants the
// extra roll or ends the turn.
func Move(room *models.Room, playerID, pawnID string, now time.Time, s Settings) (rules.MoveResult, bool, error) {
	if err := checkActive(room); err != nil {
		return rules.MoveResult{}, false, err
	}
	pawn := room.GetPawn(pawnID)
	if pawn == nil || !rules.IsMoveValid(playerID, *pawn, room) {
		return rules.MoveResult{}, false, fmt.Errorf("%w: %s cannot move %s", models.ErrInvalidMove, playerID, pawnID)
	}
	res, err := rules.ApplyMove(room, pawnID)
	if err != nil {
		return rules.MoveResult{}, false, err
	}
	extra := AfterMove(room, res, now, s)
	return res, extra, nil
}

// GrantsExtraRoll reports whether a move earns another roll: a 6, or a 1
// that brought a pawn out of base.
func GrantsExtraRoll(res rules.MoveResult) bool {
	return res.Rolled == 6 || (res.Rolled == 1 && res.LeftBase)
}

// AfterMove ends the turn, unless the move earns an extra roll and none was
// granted yet this turn. Returns true when the same player rolls again.
func AfterMove(room *models.Room, res rules.MoveResult, now time.Time, s Settings) bool {
	if GrantsExtraRoll(res) && !room.BonusRoll {
		room.BonusRoll = true
		room.RolledNumber = 0
		room.NextMoveTime = now.Add(s.MoveTime)
		return true
	}
	Advance(room, now, s)
	return false
}

// Advance passes the turn to the next seat in slot order, wrapping.
func Advance(room *models.Room, now time.Time, s Settings) {
	if len(room.Players) == 0 {
		return
	}
	room.MovingPlayerIndex = (room.MovingPlayerIndex + 1) % len(room.Players)
	room.RolledNumber = 0
	room.BonusRoll = false
	room.NextMoveTime = now.Add(s.MoveTime)
	syncNowMoving(room)
}

// ExpireIfDue advances the turn once when its deadline has passed.
func ExpireIfDue(room *models.Room, now time.Time, s Settings) bool {
	if !running(room) || room.NextMoveTime.IsZero() || now.Before(room.NextMoveTime) {
		return false
	}
	Advance(room, now, s)
	return true
}

// GameClockExpired reports whether the total game time ran out.
func GameClockExpired(room *models.Room, now time.Time) bool {
	return running(room) && !room.GameEndsAt.IsZero() && !now.Before(room.GameEndsAt)
}

// RemainingGameTime is the game time left. The clock stands still while paused.
func RemainingGameTime(room *models.Room, now time.Time) time.Duration {
	if room.GameEndsAt.IsZero() || room.Concluded() {
		return 0
	}
	ref := now
	if room.Paused && !room.PausedAt.IsZero() {
		ref = room.PausedAt
	}
	return max(room.GameEndsAt.Sub(ref), 0)
}

// SetPaused pauses or resumes the game. Resuming pushes both deadlines back
// by the time spent paused. Returns false when nothing changed.
func SetPaused(room *models.Room, paused bool, now time.Time) bool {
	if room.Paused == paused {
		return false
	}
	if paused {
		room.Paused = true
		room.PausedAt = now
		return true
	}
	if !room.PausedAt.IsZero() {
		d := now.Sub(room.PausedAt)
		if !room.NextMoveTime.IsZero() {
			room.NextMoveTime = room.NextMoveTime.Add(d)
		}
		if !room.GameEndsAt.IsZero() {
			room.GameEndsAt = room.GameEndsAt.Add(d)
		}
	}
	room.Paused = false
	room.PausedAt = time.Time{}
	return true
}

func running(room *models.Room) bool {
	return room.Started && !room.Concluded() && !room.Paused
}

func checkActive(room *models.Room) error {
	switch {
	case room.Concluded():
		return models.ErrRoomConcluded
	case !room.Started:
		return fmt.Errorf("%w: game not started", models.ErrInvalidMove)
	case room.Paused:
		return models.ErrGamePaused
	}
	return nil
}

func syncNowMoving(room *models.Room) {
	for i := range room.Players {
		room.Players[i].NowMoving = i == room.MovingPlayerIndex
	}
}

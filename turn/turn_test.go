package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/models"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

// scripted returns the given values in order, then repeats the last one.
func scripted(values ...int) Dice {
	i := 0
	return DiceFunc(func() int {
		v := values[min(i, len(values)-1)]
		i++
		return v
	})
}

func startedRoom(t *testing.T) *models.Room {
	t.Helper()
	r := models.NewRoom("r", "turns", t0)
	for _, c := range board.Colors {
		_, err := r.AddPlayer("p-"+string(c), string(c))
		require.NoError(t, err)
	}
	Start(r, t0, DefaultSettings())
	return r
}

func TestStart(t *testing.T) {
	r := startedRoom(t)

	assert.True(t, r.Started)
	assert.Equal(t, 0, r.MovingPlayerIndex)
	assert.True(t, r.Players[0].NowMoving)
	assert.False(t, r.Players[1].NowMoving)
	assert.Equal(t, t0.Add(15*time.Second), r.NextMoveTime)
	assert.Equal(t, t0.Add(30*time.Minute), r.GameEndsAt)
	assert.Equal(t, PhaseWaitingForRoll, PhaseOf(r))
}

func TestRoll_NoLegalMovePassesTurn(t *testing.T) {
	r := startedRoom(t)

	res, err := Roll(r, "p-red", scripted(4), t0, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Number)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, r.MovingPlayerIndex)
	assert.True(t, r.Players[1].NowMoving)
	assert.Zero(t, r.RolledNumber)
}

func TestRoll_Guards(t *testing.T) {
	r := startedRoom(t)
	s := DefaultSettings()

	_, err := Roll(r, "p-blue", scripted(6), t0, s)
	assert.ErrorIs(t, err, models.ErrInvalidMove, "not blue's turn")

	_, err = Roll(r, "p-red", scripted(6), t0, s)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingForMove, PhaseOf(r))

	_, err = Roll(r, "p-red", scripted(6), t0, s)
	assert.ErrorIs(t, err, models.ErrInvalidMove, "second roll before moving")

	r.Paused = true
	_, err = Roll(r, "p-red", scripted(6), t0, s)
	assert.ErrorIs(t, err, models.ErrGamePaused)

	r.Paused = false
	r.Winner = models.OutcomeQuit
	_, err = Roll(r, "p-red", scripted(6), t0, s)
	assert.ErrorIs(t, err, models.ErrRoomConcluded)
}

func TestSixFromBaseGrantsExactlyOneExtraRoll(t *testing.T) {
	r := startedRoom(t)
	s := DefaultSettings()

	_, err := Roll(r, "p-red", scripted(6), t0, s)
	require.NoError(t, err)
	res, extra, err := Move(r, "p-red", "red-0", t0, s)
	require.NoError(t, err)
	assert.Equal(t, board.Entry(board.Red), res.To)
	assert.True(t, extra)
	assert.Equal(t, 0, r.MovingPlayerIndex, "red keeps the turn")

	// a second six in the same turn does not earn a third roll
	_, err = Roll(r, "p-red", scripted(6), t0, s)
	require.NoError(t, err)
	_, extra, err = Move(r, "p-red", "red-0", t0, s)
	require.NoError(t, err)
	assert.False(t, extra)
	assert.Equal(t, 1, r.MovingPlayerIndex)
	assert.False(t, r.BonusRoll)
}

func TestOneFromBaseGrantsExtraRoll(t *testing.T) {
	r := startedRoom(t)
	s := DefaultSettings()

	_, err := Roll(r, "p-red", scripted(1), t0, s)
	require.NoError(t, err)
	_, extra, err := Move(r, "p-red", "red-0", t0, s)
	require.NoError(t, err)
	assert.True(t, extra)

	// a 1 on the ring just ends the turn
	_, err = Roll(r, "p-red", scripted(1), t0, s)
	require.NoError(t, err)
	_, extra, err = Move(r, "p-red", "red-0", t0, s)
	require.NoError(t, err)
	assert.False(t, extra)
}

func TestMove_RejectsWrongPawn(t *testing.T) {
	r := startedRoom(t)
	s := DefaultSettings()
	r.GetPawn("red-0").Position = 30

	_, err := Roll(r, "p-red", scripted(3), t0, s)
	require.NoError(t, err)

	_, _, err = Move(r, "p-red", "red-1", t0, s)
	assert.ErrorIs(t, err, models.ErrInvalidMove, "base pawn cannot use a 3")
	_, _, err = Move(r, "p-blue", "blue-0", t0, s)
	assert.ErrorIs(t, err, models.ErrInvalidMove)

	_, extra, err := Move(r, "p-red", "red-0", t0, s)
	require.NoError(t, err)
	assert.False(t, extra)
	assert.Equal(t, 33, r.GetPawn("red-0").Position)
	assert.Equal(t, 1, r.MovingPlayerIndex)
}

func TestAdvance_WrapsInColorOrder(t *testing.T) {
	r := startedRoom(t)
	var seen []board.Color
	for i := 0; i < 5; i++ {
		seen = append(seen, r.CurrentPlayer().Color)
		Advance(r, t0, DefaultSettings())
	}
	assert.Equal(t, []board.Color{board.Red, board.Blue, board.Green, board.Yellow, board.Red}, seen)
}

func TestExpireIfDue(t *testing.T) {
	r := startedRoom(t)
	s := DefaultSettings()

	assert.False(t, ExpireIfDue(r, t0.Add(14*time.Second), s))
	assert.True(t, ExpireIfDue(r, t0.Add(15*time.Second), s))
	assert.Equal(t, 1, r.MovingPlayerIndex)
	assert.Equal(t, t0.Add(30*time.Second), r.NextMoveTime)

	r.Paused = true
	assert.False(t, ExpireIfDue(r, t0.Add(time.Hour), s))
}

func TestPauseShiftsClocks(t *testing.T) {
	r := startedRoom(t)

	require.True(t, SetPaused(r, true, t0.Add(5*time.Second)))
	assert.False(t, SetPaused(r, true, t0.Add(6*time.Second)))
	assert.Equal(t, PhasePaused, PhaseOf(r))
	assert.Equal(t, 30*time.Minute-5*time.Second, RemainingGameTime(r, t0.Add(time.Hour)))

	require.True(t, SetPaused(r, false, t0.Add(65*time.Second)))
	assert.Equal(t, t0.Add(75*time.Second), r.NextMoveTime)
	assert.Equal(t, t0.Add(31*time.Minute), r.GameEndsAt)
	assert.True(t, r.PausedAt.IsZero())
}

func TestGameClock(t *testing.T) {
	r := startedRoom(t)

	assert.False(t, GameClockExpired(r, t0.Add(29*time.Minute)))
	assert.Equal(t, time.Minute, RemainingGameTime(r, t0.Add(29*time.Minute)))
	assert.True(t, GameClockExpired(r, t0.Add(30*time.Minute)))
	assert.Zero(t, RemainingGameTime(r, t0.Add(31*time.Minute)))
}

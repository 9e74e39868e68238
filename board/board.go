// board/board.go
package board

import (
	"errors"
	"fmt"
)

// Color identifies one of the four seats. Turn order follows Colors.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
)

// Colors lists the seats in join and turn order.
var Colors = []Color{Red, Blue, Green, Yellow}

// Board layout. Every coordinate lives in one linear space:
// 0-15 base squares, 16-67 the shared ring, 68-91 the four home stretches.
const (
	PawnsPerColor     = 4
	RingStart         = 16
	RingLength        = 52
	RingEnd           = RingStart + RingLength - 1
	HomeStretchLength = 6
)

// ringSteps is how many ring squares a pawn visits, entry included.
const (
	ringSteps  = RingLength - 1
	pathLength = ringSteps + HomeStretchLength
)

var ErrUnknownColor = errors.New("unknown color")

// Track describes one color's way around the board.
type Track struct {
	Color     Color
	BaseStart int // first of the four base squares
	Entry     int // ring square a pawn lands on when leaving base
	HomeStart int // first square of the private home stretch
}

var tracks = map[Color]Track{
	Red:    {Color: Red, BaseStart: 0, Entry: 16, HomeStart: 68},
	Blue:   {Color: Blue, BaseStart: 4, Entry: 55, HomeStart: 74},
	Green:  {Color: Green, BaseStart: 8, Entry: 42, HomeStart: 80},
	Yellow: {Color: Yellow, BaseStart: 12, Entry: 29, HomeStart: 86},
}

var safeSquares = map[int]bool{16: true, 29: true, 42: true, 55: true}

// ParseColor converts a wire value into a Color.
func ParseColor(s string) (Color, error) {
	c := Color(s)
	if _, ok := tracks[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	return c, nil
}

// Valid reports whether c is one of the four seat colors.
func (c Color) Valid() bool {
	_, ok := tracks[c]
	return ok
}

func (c Color) String() string { return string(c) }

// SeatColor returns the color assigned to the given join slot.
func SeatColor(slot int) (Color, bool) {
	if slot < 0 || slot >= len(Colors) {
		return "", false
	}
	return Colors[slot], true
}

// MaxReachable is the last square of c's home stretch. A pawn standing on it
// is home and never moves again.
func MaxReachable(c Color) int {
	t, ok := tracks[c]
	if !ok {
		return -1
	}
	return t.HomeStart + HomeStretchLength - 1
}

// BasePos returns the base square of the pawn in the given slot.
func BasePos(c Color, slot int) int {
	return tracks[c].BaseStart + slot
}

// Entry returns the ring square c's pawns enter on.
func Entry(c Color) int {
	return tracks[c].Entry
}

// IsAtBase reports whether position is one of c's base squares.
func IsAtBase(c Color, position int) bool {
	t, ok := tracks[c]
	if !ok {
		return false
	}
	return position >= t.BaseStart && position < t.BaseStart+PawnsPerColor
}

// IsShared reports whether position is on the ring every color travels.
func IsShared(position int) bool {
	return position >= RingStart && position <= RingEnd
}

// IsSafe reports whether pawns on position are protected from capture.
func IsSafe(position int) bool {
	return safeSquares[position]
}

// IsHome reports whether position is c's final square.
func IsHome(c Color, position int) bool {
	return position == MaxReachable(c)
}

// pathIndex maps a track coordinate to the number of steps taken since entry.
func pathIndex(t Track, position int) (int, bool) {
	switch {
	case IsShared(position):
		idx := (position - t.Entry + RingLength) % RingLength
		if idx >= ringSteps {
			// the square right before the entry is never visited by this color
			return 0, false
		}
		return idx, true
	case position >= t.HomeStart && position < t.HomeStart+HomeStretchLength:
		return ringSteps + position - t.HomeStart, true
	default:
		return 0, false
	}
}

func squareAt(t Track, idx int) int {
	if idx < ringSteps {
		return RingStart + (t.Entry-RingStart+idx)%RingLength
	}
	return t.HomeStart + idx - ringSteps
}

// Advance returns where a pawn of color c standing on position ends up after
// steps squares. A pawn at base always lands on its entry square. ok is false
// when the move would overshoot home or position is not on c's path.
func Advance(c Color, position, steps int) (int, bool) {
	t, known := tracks[c]
	if !known || steps < 0 {
		return position, false
	}
	if IsAtBase(c, position) {
		return t.Entry, true
	}
	idx, onPath := pathIndex(t, position)
	if !onPath {
		return position, false
	}
	next := idx + steps
	if next >= pathLength {
		return position, false
	}
	return squareAt(t, next), true
}

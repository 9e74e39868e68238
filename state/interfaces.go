// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/turn"
)

// Player defines the minimal interface for a player entity that a state needs to interact with.
type Player interface {
	GetID() string
}

// RoomContext is what a phase state sees of the room it runs in. The room
// package implements it per action, around a freshly loaded document.
type RoomContext interface {
	GetID() string
	Room() *models.Room
	Now() time.Time
	Settings() turn.Settings
	Dice() turn.Dice
	MinPlayers() int
	ChangeState(newState State) error
	// Emit queues an event that is broadcast after the room is saved.
	Emit(ev network.Event)
	// Touch marks the room as changed outside of HandleAction.
	Touch()
}

package room

import (
	"context"
	"time"

	"github.com/wfunc/ludoserver/models"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload any) error
	SendToPlayer(roomID, playerID, event string, payload any) error
	// BroadcastToAll reaches every connection, in a room or in the lobby.
	BroadcastToAll(event string, payload any) error
}

// Recorder stores the result of a finished game.
type Recorder interface {
	RecordGame(ctx context.Context, record models.GameRecord) error
}

// Publisher tells other server instances about a commit.
type Publisher interface {
	Publish(ctx context.Context, roomID string, version int64) error
}

// Metrics receives room activity. monitor.Monitor implements it.
type Metrics interface {
	ObserveAction(action string, took time.Duration, err error)
	GameFinished(outcome models.Outcome)
	SetActiveRooms(count int)
}

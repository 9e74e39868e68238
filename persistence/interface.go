// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/ludoserver/models"
)

// Store keeps one opaque document per room. Save is a compare-and-swap on
// Room.Version: it fails with ErrVersionConflict when the stored version is
// not the one the caller loaded, and bumps room.Version on success.
type Store interface {
	Create(ctx context.Context, room *models.Room) error
	Load(ctx context.Context, roomID string) (*models.Room, error)
	Save(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context) ([]models.RoomSummary, error)
	Close() error
}

// Change is a committed write seen by a Watcher.
type Change struct {
	RoomID  string
	Version int64
	Deleted bool
}

// Watcher is implemented by stores that can push their commits, including
// those made by other processes.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// 错误定义
var (
	ErrRecordNotFound  = fmt.Errorf("record not found: %w", models.ErrRoomNotFound)
	ErrVersionConflict = errors.New("room was modified concurrently")
	ErrDuplicateRoom   = errors.New("room already exists")
)

package persistence

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/wfunc/ludoserver/models"
)

// MemoryStore keeps rooms in process memory. Documents are cloned on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*models.Room
	watchers map[chan Change]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*models.Room),
		watchers: make(map[chan Change]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return ErrDuplicateRoom
	}
	room.Version = 1
	s.rooms[room.ID] = room.Clone()
	s.notify(Change{RoomID: room.ID, Version: room.Version})
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, roomID string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rooms[room.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if stored.Version != room.Version {
		return ErrVersionConflict
	}
	room.Version++
	s.rooms[room.ID] = room.Clone()
	s.notify(Change{RoomID: room.ID, Version: room.Version})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRecordNotFound
	}
	delete(s.rooms, roomID)
	s.notify(Change{RoomID: roomID, Version: room.Version + 1, Deleted: true})
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.RoomSummary, 0, len(s.rooms))
	for _, room := range s.rooms {
		list = append(list, room.Summary())
	}
	sortSummaries(list)
	return list, nil
}

// Watch streams every commit until ctx is done. Slow readers miss changes
// rather than block writers.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 64)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (s *MemoryStore) Close() error { return nil }

// notify must be called with s.mu held.
func (s *MemoryStore) notify(c Change) {
	for ch := range s.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}

func sortSummaries(list []models.RoomSummary) {
	slices.SortFunc(list, func(a, b models.RoomSummary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

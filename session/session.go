// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/ludoserver/network"
	"golang.org/x/time/rate"
)

// Session is one websocket connection. PlayerID and RoomID come from the
// session token and never change during the connection.
type Session struct {
	ID         string
	Conn       network.Connection
	PlayerID   string
	RoomID     string
	Name       string
	Data       map[string]interface{} // 自定义数据
	CreatedAt  time.Time
	LastActive time.Time
	limiter    *rate.Limiter
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Data[key]
}

func (s *Session) Send(event string, data []byte) error {
	return s.Conn.Send(event, data)
}

// Touch records inbound activity.
func (s *Session) Touch(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.LastActive = now
}

func (s *Session) lastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.LastActive
}

// SetRateLimit caps inbound events at limit per second with the given burst.
func (s *Session) SetRateLimit(limit float64, burst int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if limit <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
}

// Allow reports whether one more inbound event fits the rate limit.
func (s *Session) Allow() bool {
	s.mutex.RLock()
	limiter := s.limiter
	s.mutex.RUnlock()
	return limiter == nil || limiter.Allow()
}

// GetID returns the player id, so a session can act as a state.Player.
func (s *Session) GetID() string {
	return s.PlayerID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns every session.
func (m *Manager) All() []*Session {
	return m.filter(func(*Session) bool { return true })
}

// GetByRoom returns the sessions subscribed to a room.
func (m *Manager) GetByRoom(roomID string) []*Session {
	return m.filter(func(s *Session) bool { return s.RoomID == roomID })
}

// GetByPlayer returns the sessions of one player in a room; a player may be
// connected more than once.
func (m *Manager) GetByPlayer(roomID, playerID string) []*Session {
	return m.filter(func(s *Session) bool { return s.RoomID == roomID && s.PlayerID == playerID })
}

func (m *Manager) filter(keep func(*Session) bool) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if keep(session) {
			result = append(result, session)
		}
	}
	return result
}

// SweepIdle closes and removes sessions with no inbound activity since
// now-maxIdle. It returns the removed sessions.
func (m *Manager) SweepIdle(now time.Time, maxIdle time.Duration) []*Session {
	cutoff := now.Add(-maxIdle)
	m.mutex.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.lastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mutex.Unlock()

	for _, s := range stale {
		_ = s.Close()
	}
	return stale
}

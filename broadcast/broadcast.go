// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/session"
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload any) error
	SendToPlayer(roomID, playerID, event string, payload any) error
	BroadcastToAll(event string, payload any) error
}

var _ Broadcaster = (*SessionBroadcaster)(nil)

// SessionBroadcaster 基于会话的广播器: it encodes once and writes to every
// matching local session.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func (b *SessionBroadcaster) BroadcastToRoom(roomID, event string, payload any) error {
	return b.send(b.sessionManager.GetByRoom(roomID), event, payload)
}

func (b *SessionBroadcaster) SendToPlayer(roomID, playerID, event string, payload any) error {
	return b.send(b.sessionManager.GetByPlayer(roomID, playerID), event, payload)
}

func (b *SessionBroadcaster) BroadcastToAll(event string, payload any) error {
	return b.send(b.sessionManager.All(), event, payload)
}

func (b *SessionBroadcaster) send(sessions []*session.Session, event string, payload any) error {
	if len(sessions) == 0 {
		return nil
	}
	data, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := s.Send(event, data); err != nil {
			// 发送失败的连接由读循环清理
			logger.Log.Debugw("send to session failed", "session_id", s.ID, "event", event, "error", err)
		}
	}
	return nil
}

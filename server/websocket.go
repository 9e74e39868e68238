package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/session"
	"github.com/wfunc/ludoserver/state"
)

const actionTimeout = 10 * time.Second

// handleWebSocket upgrades /ws. With a token the connection belongs to one
// seat of one room; without one it only follows the room list.
func (s *GameServer) handleWebSocket(c *gin.Context) {
	var id session.Identity
	if token := c.Query("token"); token != "" {
		var err error
		if id, err = s.opts.Issuer.Parse(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), id)
}

func (s *GameServer) handleConnection(conn network.Connection, id session.Identity) {
	sess := session.NewSession(uuid.NewString(), conn)
	sess.PlayerID = id.PlayerID
	sess.RoomID = id.RoomID
	sess.Name = id.Name
	sess.Touch(s.opts.Clock())
	sess.SetRateLimit(s.opts.RateLimit, s.opts.RateBurst)
	if s.opts.HeartbeatInterval > 0 {
		conn.SetHeartbeat(s.opts.HeartbeatInterval)
	}
	s.opts.Sessions.Add(sess)
	s.reportOnline()

	logger.Log.Infow("connection opened", "session_id", sess.ID, "remote", conn.RemoteAddr().String(), "room_id", sess.RoomID, "player_id", sess.PlayerID)

	defer func() {
		logger.Log.Infow("connection closed", "session_id", sess.ID, "room_id", sess.RoomID, "player_id", sess.PlayerID)
		s.opts.Sessions.Remove(sess.ID)
		s.reportOnline()
		_ = conn.Close()
	}()

	// a fresh connection gets the current state right away
	if sess.RoomID != "" {
		s.dispatch(sess, state.Action{Type: network.EventRoomData})
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := conn.ReadPacket()
		if err != nil {
			if errors.Is(err, network.ErrEmptyEvent) || errors.Is(err, network.ErrBadPacket) {
				continue
			}
			return
		}
		sess.Touch(s.opts.Clock())
		if !sess.Allow() {
			logger.Log.Debugw("rate limited", "session_id", sess.ID, "event", packet.Event)
			continue
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.Event {
	case network.EventHeartbeat:
		_ = sess.Send(network.EventHeartbeat, nil)
		return
	case network.EventRoomList:
		s.sendRoomList(sess)
		return
	}

	if sess.RoomID == "" {
		s.notifyUnauthorized(sess, "no room joined")
		return
	}
	action, err := actionFor(packet)
	if err != nil {
		logger.Log.Debugw("bad packet", "session_id", sess.ID, "event", packet.Event, "error", err)
		return
	}
	s.dispatch(sess, action)
}

func (s *GameServer) dispatch(sess *session.Session, action state.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	err := s.opts.Rooms.Dispatch(ctx, sess.RoomID, sess.PlayerID, action)
	if err == nil {
		return
	}
	// everything but an authorization failure is swallowed
	if errors.Is(err, models.ErrUnauthorized) {
		s.notifyUnauthorized(sess, err.Error())
		return
	}
	logger.Log.Debugw("action failed", "session_id", sess.ID, "room_id", sess.RoomID, "action", action.Type, "error", err)
}

func (s *GameServer) sendRoomList(sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	list, err := s.opts.Rooms.ListRooms(ctx)
	if err != nil {
		logger.Log.Warnw("list rooms failed", "error", err)
		return
	}
	send(sess, network.EventRoomList, list)
}

func (s *GameServer) notifyUnauthorized(sess *session.Session, message string) {
	send(sess, network.EventUnauthorized, gin.H{"message": message})
}

func send(sess *session.Session, event string, payload any) {
	data, err := network.Encode(event, payload)
	if err != nil {
		logger.Log.Errorw("encode failed", "event", event, "error", err)
		return
	}
	_ = sess.Send(event, data)
}

var roomEvents = map[string]bool{
	network.EventRoomData:    true,
	network.EventRoomLeave:   true,
	network.EventRoomReady:   true,
	network.EventRoll:        true,
	network.EventMove:        true,
	network.EventQuit:        true,
	network.EventOfferDraw:   true,
	network.EventAcceptDraw:  true,
	network.EventDeclineDraw: true,
	network.EventPause:       true,
	network.EventSurrender:   true,
}

var errUnknownEvent = errors.New("unknown event")

// actionFor turns an inbound packet into a room action.
func actionFor(packet *network.Packet) (state.Action, error) {
	if !roomEvents[packet.Event] {
		return state.Action{}, errUnknownEvent
	}
	action := state.Action{Type: packet.Event}

	switch packet.Event {
	case network.EventMove:
		var p network.MovePayload
		if err := decode(packet.Data, &p); err != nil {
			return action, err
		}
		action.PawnID = p.PawnID
	case network.EventPause:
		var p network.PausePayload
		if err := decode(packet.Data, &p); err != nil {
			return action, err
		}
		action.Flag = p.Paused
	case network.EventRoomReady:
		p := network.ReadyPayload{Ready: true}
		if err := decode(packet.Data, &p); err != nil {
			return action, err
		}
		action.Flag = p.Ready
	case network.EventOfferDraw:
		var p network.DrawPayload
		if err := decode(packet.Data, &p); err != nil {
			return action, err
		}
		action.Name = p.PlayerName
	}
	return action, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

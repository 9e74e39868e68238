// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrEmptyEvent = errors.New("packet without event name")
	ErrBadPacket  = errors.New("malformed packet")
)

const writeWait = 10 * time.Second

type Connection interface {
	Send(event string, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

// Send writes one text frame. data is an already encoded packet (see Encode);
// a nil data sends the bare event.
func (c *WSConnection) Send(event string, data []byte) error {
	if data == nil {
		var err error
		if data, err = Encode(event, nil); err != nil {
			return err
		}
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if c.heartbeat > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}

	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPacket, err)
	}
	if p.Event == "" {
		return nil, ErrEmptyEvent
	}
	return &p, nil
}

// SetHeartbeat makes reads fail when nothing arrives for two intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	_ = c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	data, err := Encode(EventMove, MovePayload{PawnID: "red-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"game:move","data":{"pawnId":"red-1"}}`, string(data))

	data, err = Encode(EventRoll, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"game:roll"}`, string(data))

	_, err = Encode(EventRoll, make(chan int))
	assert.Error(t, err)
}

// echoServer upgrades and hands every connection to fn.
func echoServer(t *testing.T, fn func(*WSConnection)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewWSConnection(conn))
	}))
	t.Cleanup(ts.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWSConnection_ReadPacket(t *testing.T) {
	results := make(chan error, 3)
	packets := make(chan *Packet, 3)
	c := echoServer(t, func(conn *WSConnection) {
		defer conn.Close()
		for i := 0; i < 3; i++ {
			p, err := conn.ReadPacket()
			results <- err
			packets <- p
		}
	})

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"game:pause","data":{"paused":true}}`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"data":1}`)))

	require.NoError(t, <-results)
	p := <-packets
	assert.Equal(t, EventPause, p.Event)
	var pause PausePayload
	require.NoError(t, json.Unmarshal(p.Data, &pause))
	assert.True(t, pause.Paused)

	assert.ErrorIs(t, <-results, ErrBadPacket)
	<-packets
	assert.ErrorIs(t, <-results, ErrEmptyEvent)
}

func TestWSConnection_Send(t *testing.T) {
	c := echoServer(t, func(conn *WSConnection) {
		data, _ := Encode(EventScores, map[string]int{"red": 4})
		_ = conn.Send(EventScores, data)
		_ = conn.Send(EventHeartbeat, nil)
	})

	var p Packet
	require.NoError(t, c.ReadJSON(&p))
	assert.Equal(t, EventScores, p.Event)
	assert.JSONEq(t, `{"red":4}`, string(p.Data))

	require.NoError(t, c.ReadJSON(&p))
	assert.Equal(t, EventHeartbeat, p.Event)
}

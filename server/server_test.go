package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/broadcast"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/network"
	"github.com/wfunc/ludoserver/persistence"
	"github.com/wfunc/ludoserver/room"
	"github.com/wfunc/ludoserver/session"
	"github.com/wfunc/ludoserver/state"
	"github.com/wfunc/ludoserver/turn"
)

type fixture struct {
	server   *GameServer
	http     *httptest.Server
	sessions *session.Manager
	rooms    *room.Manager
}

func newFixture(t *testing.T, tweak func(*Options)) *fixture {
	t.Helper()
	sessions := session.NewManager()
	rooms := room.NewRoomManager(room.Options{
		Store:       persistence.NewMemoryStore(),
		Broadcaster: broadcast.NewSessionBroadcaster(sessions),
		MinPlayers:  2,
		Dice:        turn.DiceFunc(func() int { return 6 }),
	})
	opts := Options{
		Rooms:    rooms,
		Sessions: sessions,
		Issuer:   session.NewIssuer("test-secret", time.Hour),
	}
	if tweak != nil {
		tweak(&opts)
	}
	s := NewGameServer(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		rooms.Close()
	})
	return &fixture{server: s, http: ts, sessions: sessions, rooms: rooms}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	return f.doAs(t, "", method, path, body)
}

// doAs sends the request with token as its bearer token, if any.
func (f *fixture) doAs(t *testing.T, token, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) createRoom(t *testing.T, name string) models.RoomSummary {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/rooms", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var summary models.RoomSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	return summary
}

func (f *fixture) join(t *testing.T, roomID, name string) joinRoomResponse {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/rooms/"+roomID+"/join", map[string]string{"name": name})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var joined joinRoomResponse
	require.NoError(t, json.Unmarshal(body, &joined))
	return joined
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := network.Encode(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil skips packets until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) network.Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var p network.Packet
		require.NoError(t, conn.ReadJSON(&p), "waiting for %s", event)
		if p.Event == event {
			return p
		}
	}
}

func readRoom(t *testing.T, conn *websocket.Conn) models.Room {
	t.Helper()
	p := readUntil(t, conn, network.EventRoomData)
	var doc models.Room
	require.NoError(t, json.Unmarshal(p.Data, &doc))
	return doc
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, string(body))
}

func TestRoomAPI(t *testing.T) {
	f := newFixture(t, nil)

	first := f.createRoom(t, "first")
	second := f.createRoom(t, "")
	assert.Equal(t, "first", first.Name)
	assert.NotEmpty(t, second.Name)

	resp, body := f.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.RoomSummary
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	joined := f.join(t, first.ID, "alice")
	assert.Equal(t, first.ID, joined.RoomID)
	assert.Equal(t, string(board.Red), joined.Color)
	assert.NotEmpty(t, joined.PlayerID)
	assert.NotEmpty(t, joined.Token)

	// a room with players cannot be deleted
	resp, _ = f.do(t, http.MethodDelete, "/api/rooms/"+first.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/rooms/"+second.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/rooms/"+second.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Players)
}

func TestJoin(t *testing.T) {
	f := newFixture(t, nil)
	r := f.createRoom(t, "full")

	var first joinRoomResponse
	for i, c := range board.Colors {
		joined := f.join(t, r.ID, fmt.Sprintf("p%d", i))
		assert.Equal(t, string(c), joined.Color)
		if i == 0 {
			first = joined
		}
	}

	resp, _ := f.do(t, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// the seat's token gets the seat back
	resp, body := f.doAs(t, first.Token, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "p0"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var again joinRoomResponse
	require.NoError(t, json.Unmarshal(body, &again))
	assert.Equal(t, first.PlayerID, again.PlayerID)
	assert.Equal(t, first.Color, again.Color)

	resp, _ = f.do(t, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "name is required")

	resp, _ = f.do(t, http.MethodPost, "/api/rooms/missing/join", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/rooms/joinable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestJoin_CannotTakeAnotherSeat(t *testing.T) {
	f := newFixture(t, nil)
	r := f.createRoom(t, "seats")
	alice := f.join(t, r.ID, "alice")

	// naming alice's id in the body only gets a fresh seat
	resp, body := f.do(t, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "mallory", "player_id": alice.PlayerID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var mallory joinRoomResponse
	require.NoError(t, json.Unmarshal(body, &mallory))
	assert.NotEqual(t, alice.PlayerID, mallory.PlayerID)
	assert.Equal(t, string(board.Blue), mallory.Color)

	// a token of another room does not open this one
	other := f.createRoom(t, "other")
	resp, _ = f.doAs(t, mallory.Token, http.MethodPost, "/api/rooms/"+other.ID+"/join", map[string]string{"name": "mallory"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.doAs(t, "forged", http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "mallory"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// once the game runs, only the token of a seat gets in
	require.NoError(t, f.rooms.Dispatch(t.Context(), r.ID, alice.PlayerID, state.Action{Type: network.EventRoomReady, Flag: true}))
	require.NoError(t, f.rooms.Dispatch(t.Context(), r.ID, mallory.PlayerID, state.Action{Type: network.EventRoomReady, Flag: true}))
	resp, _ = f.do(t, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "mallory", "player_id": alice.PlayerID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = f.doAs(t, alice.Token, http.MethodPost, "/api/rooms/"+r.ID+"/join", map[string]string{"name": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var back joinRoomResponse
	require.NoError(t, json.Unmarshal(body, &back))
	assert.Equal(t, alice.PlayerID, back.PlayerID)
	assert.Equal(t, string(board.Red), back.Color)
}

func TestQuickJoinAndScores(t *testing.T) {
	f := newFixture(t, nil)

	var first joinRoomResponse
	for i := 0; i < 2; i++ {
		resp, body := f.do(t, http.MethodPost, "/api/rooms/join", map[string]string{"name": fmt.Sprintf("p%d", i)})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		var joined joinRoomResponse
		require.NoError(t, json.Unmarshal(body, &joined))
		assert.NotEmpty(t, joined.Token)
		if i == 0 {
			first = joined
		}
		assert.Equal(t, first.RoomID, joined.RoomID)
	}

	resp, _ := f.do(t, http.MethodPost, "/api/rooms/join", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/rooms/"+first.RoomID+"/scores", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scores map[string]models.ScoreEntry
	require.NoError(t, json.Unmarshal(body, &scores))
	require.Len(t, scores, 2)
	assert.Equal(t, "p0", scores["red"].PlayerName)
	assert.Zero(t, scores["blue"].Score)

	resp, _ = f.do(t, http.MethodGet, "/api/rooms/missing/scores", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	f := newFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_Game(t *testing.T) {
	f := newFixture(t, nil)
	r := f.createRoom(t, "game")
	alice := f.join(t, r.ID, "alice")
	bob := f.join(t, r.ID, "bob")

	a := f.dial(t, alice.Token)
	b := f.dial(t, bob.Token)

	doc := readRoom(t, a)
	assert.Len(t, doc.Players, 2)
	assert.False(t, doc.Started)
	readRoom(t, b)

	write(t, a, network.EventRoomReady, network.ReadyPayload{Ready: true})
	doc = readRoom(t, b)
	assert.True(t, doc.Players[0].Ready)
	readRoom(t, a)

	write(t, b, network.EventRoomReady, nil)
	doc = readRoom(t, a)
	require.True(t, doc.Started)
	assert.True(t, doc.Players[0].NowMoving)
	readUntil(t, a, network.EventScores)

	write(t, a, network.EventRoll, nil)
	p := readUntil(t, b, network.EventRoll)
	assert.JSONEq(t, `6`, string(p.Data))
	readRoom(t, b)

	write(t, a, network.EventMove, network.MovePayload{PawnID: "red-0"})
	doc = readRoom(t, b)
	assert.Equal(t, board.Entry(board.Red), doc.Pawns[0].Position)
	assert.True(t, doc.BonusRoll, "a six grants one more roll")

	// out of turn: swallowed, nobody hears about it
	write(t, b, network.EventRoll, nil)
	write(t, b, network.EventHeartbeat, nil)
	readUntil(t, b, network.EventHeartbeat)

	write(t, a, network.EventQuit, nil)
	p = readUntil(t, b, network.EventWinner)
	assert.JSONEq(t, `"quit"`, string(p.Data))
}

func TestWebSocket_LobbyConnection(t *testing.T) {
	f := newFixture(t, nil)
	f.createRoom(t, "one")

	lobby := f.dial(t, "")
	write(t, lobby, network.EventRoomList, nil)
	p := readUntil(t, lobby, network.EventRoomList)
	var list []models.RoomSummary
	require.NoError(t, json.Unmarshal(p.Data, &list))
	assert.Len(t, list, 1)

	// room list changes reach every connection
	f.createRoom(t, "two")
	p = readUntil(t, lobby, network.EventRoomList)
	require.NoError(t, json.Unmarshal(p.Data, &list))
	assert.Len(t, list, 2)

	write(t, lobby, network.EventRoll, nil)
	readUntil(t, lobby, network.EventUnauthorized)
}

func TestWebSocket_UnauthorizedAfterStart(t *testing.T) {
	f := newFixture(t, nil)
	r := f.createRoom(t, "kick")
	alice := f.join(t, r.ID, "alice")
	f.join(t, r.ID, "bob")
	carol := f.join(t, r.ID, "carol")

	c := f.dial(t, carol.Token)
	readRoom(t, c)
	write(t, c, network.EventRoomLeave, nil)
	doc := readRoom(t, c)
	require.Len(t, doc.Players, 2)

	a := f.dial(t, alice.Token)
	readRoom(t, a)
	require.NoError(t, f.rooms.Dispatch(t.Context(), r.ID, alice.PlayerID, state.Action{Type: network.EventRoomReady, Flag: true}))
	require.NoError(t, f.rooms.Dispatch(t.Context(), r.ID, doc.Players[1].ID, state.Action{Type: network.EventRoomReady, Flag: true}))

	// carol's token still names the room, but she has no seat in the game
	write(t, c, network.EventRoll, nil)
	readUntil(t, c, network.EventUnauthorized)
}

func TestWebSocket_RateLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.RateLimit = 0.001
		o.RateBurst = 1
	})
	lobby := f.dial(t, "")

	write(t, lobby, network.EventRoomList, nil)
	write(t, lobby, network.EventRoomList, nil)
	readUntil(t, lobby, network.EventRoomList)

	require.NoError(t, lobby.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var p network.Packet
	assert.Error(t, lobby.ReadJSON(&p), "second request is dropped")
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		packet network.Packet
		want   state.Action
	}{
		{network.Packet{Event: network.EventRoll}, state.Action{Type: network.EventRoll}},
		{network.Packet{Event: network.EventMove, Data: json.RawMessage(`{"pawnId":"blue-2"}`)}, state.Action{Type: network.EventMove, PawnID: "blue-2"}},
		{network.Packet{Event: network.EventPause, Data: json.RawMessage(`{"paused":true}`)}, state.Action{Type: network.EventPause, Flag: true}},
		{network.Packet{Event: network.EventRoomReady}, state.Action{Type: network.EventRoomReady, Flag: true}},
		{network.Packet{Event: network.EventRoomReady, Data: json.RawMessage(`{"ready":false}`)}, state.Action{Type: network.EventRoomReady}},
		{network.Packet{Event: network.EventOfferDraw, Data: json.RawMessage(`{"playerName":"ann"}`)}, state.Action{Type: network.EventOfferDraw, Name: "ann"}},
	}
	for _, tt := range tests {
		got, err := actionFor(&tt.packet)
		require.NoError(t, err, tt.packet.Event)
		assert.Equal(t, tt.want, got)
	}

	_, err := actionFor(&network.Packet{Event: "room:join"})
	assert.ErrorIs(t, err, errUnknownEvent)
	_, err = actionFor(&network.Packet{Event: network.EventMove, Data: json.RawMessage(`[`)})
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(persistence.ErrRecordNotFound))
	assert.Equal(t, http.StatusForbidden, statusOf(fmt.Errorf("wrap: %w", models.ErrUnauthorized)))
	assert.Equal(t, http.StatusConflict, statusOf(models.ErrRoomFull))
	assert.Equal(t, http.StatusConflict, statusOf(models.ErrGameStarted))
	assert.Equal(t, http.StatusBadRequest, statusOf(models.ErrInvalidMove))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}

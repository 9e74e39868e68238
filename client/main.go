package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/ludoserver/network"
)

const usage = `commands:
  ready | unready        toggle ready in the lobby
  roll                   roll the die
  move <pawn>            move a pawn, e.g. move red-0
  pause | resume
  draw | accept | decline
  surrender | quit | leave
  rooms | data           request the room list / room state
  help`

type joinResponse struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
	Color    string `json:"color"`
	Token    string `json:"token"`
}

// commandPacket turns one input line into an outbound event.
func commandPacket(line string) (string, any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "ready":
		return network.EventRoomReady, network.ReadyPayload{Ready: true}, nil
	case "unready":
		return network.EventRoomReady, network.ReadyPayload{Ready: false}, nil
	case "roll":
		return network.EventRoll, nil, nil
	case "move":
		if len(fields) != 2 {
			return "", nil, fmt.Errorf("usage: move <pawn>")
		}
		return network.EventMove, network.MovePayload{PawnID: fields[1]}, nil
	case "pause":
		return network.EventPause, network.PausePayload{Paused: true}, nil
	case "resume":
		return network.EventPause, network.PausePayload{Paused: false}, nil
	case "draw":
		return network.EventOfferDraw, nil, nil
	case "accept":
		return network.EventAcceptDraw, nil, nil
	case "decline":
		return network.EventDeclineDraw, nil, nil
	case "surrender":
		return network.EventSurrender, nil, nil
	case "quit":
		return network.EventQuit, nil, nil
	case "leave":
		return network.EventRoomLeave, nil, nil
	case "rooms":
		return network.EventRoomList, nil, nil
	case "data":
		return network.EventRoomData, nil, nil
	}
	return "", nil, fmt.Errorf("unknown command %q", fields[0])
}

// join seats the player through the HTTP API. With no room id the server
// picks a joinable room, or creates one.
func join(base, roomID, name string) (*joinResponse, error) {
	path := base + "/api/rooms/join"
	if roomID != "" {
		path = base + "/api/rooms/" + url.PathEscape(roomID) + "/join"
	}

	var joined joinResponse
	if err := call(http.MethodPost, path, map[string]string{"name": name}, &joined); err != nil {
		return nil, err
	}
	return &joined, nil
}

func call(method, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %s %s", method, url, resp.Status, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func send(c *websocket.Conn, event string, payload any) error {
	data, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func main() {
	host := flag.String("server", "localhost:8080", "server host:port")
	roomID := flag.String("room", "", "room id to join; empty picks a joinable room")
	name := flag.String("name", "player", "display name")
	heartbeat := flag.Duration("heartbeat", 15*time.Second, "heartbeat interval")
	flag.Parse()

	joined, err := join("http://"+*host, *roomID, *name)
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}
	log.Printf("Joined room %s as %s (%s)", joined.RoomID, joined.PlayerID, joined.Color)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws", RawQuery: url.Values{"token": {joined.Token}}.Encode()}
	log.Printf("Connecting to %s", u.Host)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var p network.Packet
			if err := c.ReadJSON(&p); err != nil {
				log.Println("Read error:", err)
				return
			}
			if p.Event == network.EventHeartbeat {
				continue
			}
			log.Printf("<- %s %s", p.Event, string(p.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	log.Println("Client started. Type 'help' for commands.")

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(c, network.EventHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "help" {
				fmt.Println(usage)
				continue
			}
			event, payload, err := commandPacket(line)
			if err != nil {
				log.Println(err)
				continue
			}
			if err := send(c, event, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> %s", event)
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

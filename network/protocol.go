package network

import "encoding/json"

// Client -> server events.
const (
	EventHeartbeat   = "heartbeat"
	EventRoomData    = "room:data"
	EventRoomList    = "room:rooms"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventRoomReady   = "room:ready"
	EventRoll        = "game:roll"
	EventMove        = "game:move"
	EventQuit        = "game:quit"
	EventOfferDraw   = "game:offerDraw"
	EventAcceptDraw  = "game:acceptDraw"
	EventDeclineDraw = "game:declineDraw"
	EventPause       = "game:pause"
	EventSurrender   = "game:surrender"
)

// Server -> client events. room:data, room:rooms and game:roll are shared
// with the inbound names above.
const (
	EventScores        = "game:scores"
	EventWinner        = "game:winner"
	EventDrawOffered   = "game:drawOffered"
	EventDrawResponse  = "game:drawResponse"
	EventPaused        = "game:paused"
	EventTimeRemaining = "game:timeRemaining"
	EventUnauthorized  = "error:unauthorized"
)

// Packet is the JSON envelope of every websocket frame.
type Packet struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound notification produced while handling an action. An
// empty To addresses every subscriber of the room, otherwise only the
// connections of that player.
type Event struct {
	Name    string
	To      string
	Payload any
}

// Encode marshals a packet with the given payload.
func Encode(event string, payload any) ([]byte, error) {
	p := Packet{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		p.Data = data
	}
	return json.Marshal(p)
}

// Payloads of inbound events.
type (
	MovePayload struct {
		PawnID string `json:"pawnId"`
	}
	PausePayload struct {
		Paused bool `json:"paused"`
	}
	ReadyPayload struct {
		Ready bool `json:"ready"`
	}
	DrawPayload struct {
		PlayerName string `json:"playerName,omitempty"`
	}
)

// Payloads of outbound events.
type (
	DrawOfferedPayload struct {
		OfferingPlayer string `json:"offeringPlayer"`
		PlayerID       string `json:"playerId"`
	}
	DrawResponsePayload struct {
		Accepted bool   `json:"accepted"`
		PlayerID string `json:"playerId"`
	}
	PausedPayload struct {
		Paused bool `json:"paused"`
	}
)

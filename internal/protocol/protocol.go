// Package protocol defines the JSON wire contract between clients and the
// room authority. One envelope shape in each direction; payloads ride in Data.
package protocol

import "encoding/json"

// Inbound message types.
const (
	TypeCreateRoom    = "create_room"
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeSetName       = "set_name"
	TypeReady         = "ready"
	TypeSetPromptMode = "set_prompt_mode"
	TypeProgress      = "progress"
	TypeFinish        = "finish"
	TypeRestartRound  = "restart_round"
)

// Outbound message types.
const (
	TypeHello          = "hello"
	TypeRoomJoined     = "room_joined"
	TypeRoomState      = "room_state"
	TypePlayerProgress = "player_progress"
	TypeError          = "error"
)

// ClientMessage is the decoded inbound envelope. Data fields are flattened
// here with pointer types so a missing field is distinguishable from a zero.
type ClientMessage struct {
	Type string `json:"type"`
	Rid  string `json:"rid,omitempty"`

	Name       string `json:"name,omitempty"`
	Ready      *bool  `json:"ready,omitempty"`
	PromptMode string `json:"promptMode,omitempty"`
	Cursor     *int   `json:"cursor,omitempty"`
	Mistakes   *int   `json:"mistakes,omitempty"`
	Finished   *bool  `json:"finished,omitempty"`
}

// Decode parses a raw envelope, flattening the nested data object.
func Decode(raw []byte) (ClientMessage, error) {
	var envelope struct {
		Type string          `json:"type"`
		Rid  string          `json:"rid,omitempty"`
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ClientMessage{}, err
	}

	m := ClientMessage{Type: envelope.Type, Rid: envelope.Rid}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &m); err != nil {
			return ClientMessage{}, err
		}
		// The envelope's own fields win over anything smuggled into data.
		m.Type = envelope.Type
		m.Rid = envelope.Rid
	}
	return m, nil
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type string `json:"type"`
	Rid  string `json:"rid,omitempty"`
	Data any    `json:"data,omitempty"`
	Err  string `json:"err,omitempty"`
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Err: msg}
}

// PlayerState is a player's entry in a room snapshot.
type PlayerState struct {
	Pid      string  `json:"pid"`
	Name     string  `json:"name"`
	Ready    bool    `json:"ready"`
	Cursor   int     `json:"cursor"`
	Mistakes int     `json:"mistakes"`
	WPM      float64 `json:"wpm"`
	Acc      float64 `json:"acc"`
	Status   string  `json:"status"`
}

// RoomState is the full room snapshot broadcast on every structural change.
// Players are listed in join order.
type RoomState struct {
	Rid        string        `json:"rid"`
	Status     string        `json:"status"`
	HostPid    string        `json:"hostPid"`
	PromptMode string        `json:"promptMode"`
	Seed       uint32        `json:"seed"`
	StartAtMs  int64         `json:"startAtMs"`
	Players    []PlayerState `json:"players"`
}

// ProgressUpdate is the incremental per-player delta broadcast on every
// accepted progress or finish.
type ProgressUpdate struct {
	Pid      string  `json:"pid"`
	Cursor   int     `json:"cursor"`
	Mistakes int     `json:"mistakes"`
	WPM      float64 `json:"wpm"`
	Acc      float64 `json:"acc"`
	Status   string  `json:"status"`
}

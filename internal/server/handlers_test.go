package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"keyracer/internal/protocol"
	"keyracer/internal/race"
	"keyracer/internal/rooms"
	"keyracer/internal/words"
	"keyracer/internal/wshub"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	provider, err := words.Load("")
	if err != nil {
		t.Fatalf("loading word lists: %v", err)
	}
	cfg := race.Config{
		Countdown:        20 * time.Millisecond,
		ResultsWindow:    50 * time.Millisecond,
		ProgressInterval: time.Millisecond,
		MaxPlayers:       4,
	}
	return &Server{
		Rooms: rooms.NewStore(cfg, provider, nil),
		Hub:   wshub.NewHub(),
	}
}

// newConn fakes a connected client: the router only ever touches the Send
// channel, so no socket is needed to exercise dispatch.
func newConn(s *Server, pid string) *connSession {
	client := wshub.NewClient(pid, nil)
	s.Hub.Register(client)
	return &connSession{client: client}
}

func drain(cs *connSession) []protocol.ServerMessage {
	var msgs []protocol.ServerMessage
	for {
		select {
		case m := <-cs.client.Send:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func lastError(msgs []protocol.ServerMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == protocol.TypeError {
			return msgs[i].Err
		}
	}
	return ""
}

func TestDispatch_CreateRoom(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")

	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeCreateRoom})

	if cs.roomCode == "" {
		t.Fatal("connection should be attached to the new room")
	}
	room := s.Rooms.Get(cs.roomCode)
	if room == nil {
		t.Fatal("room should exist in the registry")
	}
	snap := room.Game.Snapshot()
	if snap.HostPid != "p_1" {
		t.Errorf("hostPid = %q, want p_1", snap.HostPid)
	}

	msgs := drain(cs)
	var sawJoined, sawState bool
	for _, m := range msgs {
		switch m.Type {
		case protocol.TypeRoomJoined:
			sawJoined = true
			if m.Rid != cs.roomCode {
				t.Errorf("room_joined rid = %q, want %q", m.Rid, cs.roomCode)
			}
		case protocol.TypeRoomState:
			sawState = true
		}
	}
	if !sawJoined || !sawState {
		t.Errorf("wanted room_joined and room_state, got %+v", msgs)
	}
}

func TestDispatch_JoinRoom(t *testing.T) {
	s := newTestServer(t)
	host := newConn(s, "p_1")
	s.dispatch(host, protocol.ClientMessage{Type: protocol.TypeCreateRoom})

	guest := newConn(s, "p_2")
	s.dispatch(guest, protocol.ClientMessage{Type: protocol.TypeJoinRoom, Rid: strings.ToLower(host.roomCode)})

	if guest.roomCode != host.roomCode {
		t.Errorf("guest room = %q, want %q (codes are case-insensitive)", guest.roomCode, host.roomCode)
	}
	snap := s.Rooms.Get(host.roomCode).Game.Snapshot()
	if len(snap.Players) != 2 {
		t.Errorf("players = %d, want 2", len(snap.Players))
	}
}

func TestDispatch_JoinUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")

	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeJoinRoom, Rid: "ZZZZ"})

	if got := lastError(drain(cs)); got != "room not found" {
		t.Errorf("error = %q, want %q", got, "room not found")
	}
	if cs.roomCode != "" {
		t.Error("failed join must not attach the connection")
	}
}

func TestDispatch_JoinMissingRid(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")

	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeJoinRoom})

	if got := lastError(drain(cs)); got != "missing rid" {
		t.Errorf("error = %q, want %q", got, "missing rid")
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")

	s.dispatch(cs, protocol.ClientMessage{Type: "teleport"})

	if got := lastError(drain(cs)); got != "unknown message type" {
		t.Errorf("error = %q, want %q", got, "unknown message type")
	}
}

func TestDispatch_SetNameBeforeJoinSticks(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")

	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeSetName, Name: "Rick"})
	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeCreateRoom})

	snap := s.Rooms.Get(cs.roomCode).Game.Snapshot()
	if snap.Players[0].Name != "Rick" {
		t.Errorf("name = %q, want Rick", snap.Players[0].Name)
	}
}

func TestDispatch_RoomScopedWithoutRoom(t *testing.T) {
	s := newTestServer(t)
	ready := true
	cursor, mistakes := 3, 0

	tests := []struct {
		name string
		msg  protocol.ClientMessage
	}{
		{"ready", protocol.ClientMessage{Type: protocol.TypeReady, Ready: &ready}},
		{"set_prompt_mode", protocol.ClientMessage{Type: protocol.TypeSetPromptMode, PromptMode: "medium"}},
		{"progress", protocol.ClientMessage{Type: protocol.TypeProgress, Cursor: &cursor, Mistakes: &mistakes}},
		{"finish", protocol.ClientMessage{Type: protocol.TypeFinish}},
		{"restart_round", protocol.ClientMessage{Type: protocol.TypeRestartRound}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newConn(s, "p_"+tt.name)
			s.dispatch(cs, tt.msg)
			if got := lastError(drain(cs)); got != "not in a room" {
				t.Errorf("error = %q, want %q", got, "not in a room")
			}
		})
	}
}

func TestDispatch_FullRaceFlow(t *testing.T) {
	s := newTestServer(t)
	host := newConn(s, "p_1")
	guest := newConn(s, "p_2")
	ready := true

	s.dispatch(host, protocol.ClientMessage{Type: protocol.TypeCreateRoom})
	s.dispatch(guest, protocol.ClientMessage{Type: protocol.TypeJoinRoom, Rid: host.roomCode})
	s.dispatch(host, protocol.ClientMessage{Type: protocol.TypeSetPromptMode, PromptMode: "medium"})
	s.dispatch(host, protocol.ClientMessage{Type: protocol.TypeReady, Ready: &ready})
	s.dispatch(guest, protocol.ClientMessage{Type: protocol.TypeReady, Ready: &ready})

	game := s.Rooms.Get(host.roomCode).Game
	if got := game.Snapshot().Status; got != race.StatusCountdown {
		t.Fatalf("status = %q, want COUNTDOWN", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for game.Snapshot().Status != race.StatusRunning && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := game.Snapshot().Status; got != race.StatusRunning {
		t.Fatalf("status = %q, want RUNNING", got)
	}

	promptLen := len(game.Prompt())
	s.dispatch(host, progressMsg(promptLen, 1))
	s.dispatch(guest, progressMsg(promptLen, 0))

	if got := game.Snapshot().Status; got != race.StatusFinished {
		t.Errorf("status = %q, want FINISHED after both reach the end", got)
	}
}

func TestDispatch_LastLeaveDestroysRoom(t *testing.T) {
	s := newTestServer(t)
	cs := newConn(s, "p_1")
	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeCreateRoom})
	code := cs.roomCode

	s.dispatch(cs, protocol.ClientMessage{Type: protocol.TypeLeaveRoom})

	if s.Rooms.Get(code) != nil {
		t.Fatal("room should be destroyed when its last player leaves")
	}

	other := newConn(s, "p_2")
	s.dispatch(other, protocol.ClientMessage{Type: protocol.TypeJoinRoom, Rid: code})
	if got := lastError(drain(other)); got != "room not found" {
		t.Errorf("join after destroy: error = %q, want %q", got, "room not found")
	}
}

func progressMsg(cursor, mistakes int) protocol.ClientMessage {
	return protocol.ClientMessage{Type: protocol.TypeProgress, Cursor: &cursor, Mistakes: &mistakes}
}

func TestHandleWS_HelloAndCreate(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.CloseNow()

	read := func() protocol.ServerMessage {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		var raw struct {
			Type string         `json:"type"`
			Rid  string         `json:"rid"`
			Data map[string]any `json:"data"`
			Err  string         `json:"err"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		return protocol.ServerMessage{Type: raw.Type, Rid: raw.Rid, Data: raw.Data, Err: raw.Err}
	}

	hello := read()
	if hello.Type != protocol.TypeHello {
		t.Fatalf("first message type = %q, want hello", hello.Type)
	}
	data := hello.Data.(map[string]any)
	pid, _ := data["pid"].(string)
	if !strings.HasPrefix(pid, "p_") {
		t.Errorf("pid = %q, want p_ prefix", pid)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"create_room"}`)); err != nil {
		t.Fatal(err)
	}

	var sawJoined, sawState bool
	for i := 0; i < 2; i++ {
		switch msg := read(); msg.Type {
		case protocol.TypeRoomJoined:
			sawJoined = true
		case protocol.TypeRoomState:
			sawState = true
			state := msg.Data.(map[string]any)
			if state["status"] != race.StatusLobby {
				t.Errorf("room status = %v, want LOBBY", state["status"])
			}
		default:
			t.Errorf("unexpected message %+v", msg)
		}
	}
	if !sawJoined || !sawState {
		t.Error("expected room_joined and room_state after create_room")
	}
}

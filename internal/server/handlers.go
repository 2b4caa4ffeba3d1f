package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"keyracer/internal/db"
	"keyracer/internal/protocol"
	"keyracer/internal/race"
	"keyracer/internal/rooms"
	"keyracer/internal/wshub"
)

type Server struct {
	Rooms *rooms.Store
	Hub   *wshub.Hub
	DB    *db.DB // nil if no database configured
}

// connSession is the router's per-connection state: who this socket is and
// which room currently owns its messages.
type connSession struct {
	client   *wshub.Client
	name     string
	roomCode string
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("[WS] accept failed: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(64 * 1024)

	pid := "p_" + uuid.NewString()[:8]
	client := wshub.NewClient(pid, conn)
	s.Hub.Register(client)

	cs := &connSession{client: client}
	client.Reply(protocol.ServerMessage{
		Type: protocol.TypeHello,
		Data: map[string]any{"pid": pid},
	})

	ctx := r.Context()
	go client.WritePump(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			client.Reply(protocol.Error("malformed message"))
			continue
		}
		s.dispatch(cs, msg)
	}

	// Disconnect is an implicit leave.
	s.leaveRoom(cs)
	s.Hub.Unregister(pid)
	log.Printf("[WS] client disconnected pid=%s", pid)
}

// dispatch routes one decoded message. Protocol and state errors are
// answered on the offending connection only; nothing here can take a room
// down.
func (s *Server) dispatch(cs *connSession, m protocol.ClientMessage) {
	switch m.Type {

	case protocol.TypeCreateRoom:
		if cs.roomCode != "" {
			cs.client.Reply(protocol.Error("already in a room"))
			return
		}
		room, err := s.Rooms.Create()
		if err != nil {
			log.Printf("[WS] create room: %v", err)
			cs.client.Reply(protocol.Error("could not create room"))
			return
		}
		if err := room.Game.Join(cs.client.PID, cs.name, cs.client.Send); err != nil {
			cs.client.Reply(protocol.Error(err.Error()))
			return
		}
		cs.roomCode = room.Code
		cs.client.Reply(protocol.ServerMessage{
			Type: protocol.TypeRoomJoined,
			Rid:  room.Code,
			Data: map[string]any{"rid": room.Code},
		})

	case protocol.TypeJoinRoom:
		if m.Rid == "" {
			cs.client.Reply(protocol.Error("missing rid"))
			return
		}
		if cs.roomCode != "" {
			cs.client.Reply(protocol.Error("already in a room"))
			return
		}
		code := rooms.NormalizeCode(m.Rid)
		room := s.Rooms.Get(code)
		if room == nil {
			cs.client.Reply(protocol.Error("room not found"))
			return
		}
		if err := room.Game.Join(cs.client.PID, cs.name, cs.client.Send); err != nil {
			cs.client.Reply(protocol.Error(joinErrText(err)))
			return
		}
		cs.roomCode = code
		cs.client.Reply(protocol.ServerMessage{
			Type: protocol.TypeRoomJoined,
			Rid:  code,
			Data: map[string]any{"rid": code},
		})

	case protocol.TypeLeaveRoom:
		s.leaveRoom(cs)

	case protocol.TypeSetName:
		if m.Name == "" {
			cs.client.Reply(protocol.Error("missing name"))
			return
		}
		cs.name = m.Name
		if room := s.currentRoom(cs); room != nil {
			room.Game.SetName(cs.client.PID, m.Name)
		}

	case protocol.TypeReady:
		if m.Ready == nil {
			cs.client.Reply(protocol.Error("missing ready"))
			return
		}
		room := s.currentRoom(cs)
		if room == nil {
			cs.client.Reply(protocol.Error("not in a room"))
			return
		}
		room.Game.SetReady(cs.client.PID, *m.Ready)

	case protocol.TypeSetPromptMode:
		if m.PromptMode == "" {
			cs.client.Reply(protocol.Error("missing promptMode"))
			return
		}
		room := s.currentRoom(cs)
		if room == nil {
			cs.client.Reply(protocol.Error("not in a room"))
			return
		}
		if err := room.Game.SetPromptMode(cs.client.PID, m.PromptMode); err != nil {
			cs.client.Reply(protocol.Error(err.Error()))
		}

	case protocol.TypeProgress:
		if m.Cursor == nil || m.Mistakes == nil {
			cs.client.Reply(protocol.Error("missing cursor or mistakes"))
			return
		}
		room := s.currentRoom(cs)
		if room == nil {
			cs.client.Reply(protocol.Error("not in a room"))
			return
		}
		finished := m.Finished != nil && *m.Finished
		room.Game.Progress(cs.client.PID, *m.Cursor, *m.Mistakes, finished)

	case protocol.TypeFinish:
		room := s.currentRoom(cs)
		if room == nil {
			cs.client.Reply(protocol.Error("not in a room"))
			return
		}
		room.Game.Finish(cs.client.PID)

	case protocol.TypeRestartRound:
		room := s.currentRoom(cs)
		if room == nil {
			cs.client.Reply(protocol.Error("not in a room"))
			return
		}
		room.Game.Restart(cs.client.PID)

	default:
		cs.client.Reply(protocol.Error("unknown message type"))
	}
}

func (s *Server) currentRoom(cs *connSession) *rooms.Room {
	if cs.roomCode == "" {
		return nil
	}
	return s.Rooms.Get(cs.roomCode)
}

// leaveRoom detaches the connection from its room, tearing the room down if
// that was the last session. Safe to call when not in a room.
func (s *Server) leaveRoom(cs *connSession) {
	if cs.roomCode == "" {
		return
	}
	code := cs.roomCode
	cs.roomCode = ""
	if room := s.Rooms.Get(code); room != nil {
		room.Game.Leave(cs.client.PID)
		s.Rooms.MaybeDelete(code)
	}
}

func joinErrText(err error) string {
	switch {
	case errors.Is(err, race.ErrRoomFull):
		return "room full"
	case errors.Is(err, race.ErrNotInLobby):
		return "race in progress"
	default:
		return err.Error()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			status = "db_error"
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"%s","error":"%s"}`, status, err.Error())
			return
		}
	}
	fmt.Fprintf(w, `{"status":"%s"}`, status)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.DB == nil {
		fmt.Fprint(w, "[]")
		return
	}
	results, err := s.DB.BestResults(20)
	if err != nil {
		log.Printf("[DB] BestResults error: %v", err)
		http.Error(w, `{"error":"leaderboard unavailable"}`, http.StatusInternalServerError)
		return
	}
	if results == nil {
		fmt.Fprint(w, "[]")
		return
	}
	if err := json.NewEncoder(w).Encode(results); err != nil {
		log.Println(err)
	}
}

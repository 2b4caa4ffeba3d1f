package race

import (
	"time"

	"golang.org/x/time/rate"

	"keyracer/internal/protocol"
)

// Player round status values, also used for the room itself.
const (
	StatusLobby     = "LOBBY"
	StatusCountdown = "COUNTDOWN"
	StatusRunning   = "RUNNING"
	StatusFinished  = "FINISHED"
)

// Session is the per-participant record a Game owns. All fields are guarded
// by the owning Game's mutex; the out channel is written to with a
// non-blocking send so a slow consumer never stalls the room.
type Session struct {
	pid  string
	name string
	out  chan<- protocol.ServerMessage

	ready    bool
	cursor   int
	mistakes int
	wpm      float64
	acc      float64
	status   string
	rank     int

	// limiter throttles progress reports to roughly the client's own send
	// interval; reports beyond it are dropped, not errors.
	limiter *rate.Limiter
}

func newSession(pid, name string, interval time.Duration, out chan<- protocol.ServerMessage) *Session {
	if name == "" {
		name = "Guest"
	}
	return &Session{
		pid:     pid,
		name:    name,
		out:     out,
		acc:     100,
		status:  StatusLobby,
		limiter: rate.NewLimiter(rate.Every(interval), 3),
	}
}

// resetForRound clears the per-round fields. Readiness is left alone so a
// restart does not force everyone to re-ready.
func (s *Session) resetForRound() {
	s.cursor = 0
	s.mistakes = 0
	s.wpm = 0
	s.acc = 100
	s.rank = 0
	s.status = StatusRunning
}

func (s *Session) state() protocol.PlayerState {
	return protocol.PlayerState{
		Pid:      s.pid,
		Name:     s.name,
		Ready:    s.ready,
		Cursor:   s.cursor,
		Mistakes: s.mistakes,
		WPM:      s.wpm,
		Acc:      s.acc,
		Status:   s.status,
	}
}

// Package race implements the authoritative room state machine for
// multiplayer typing races: LOBBY -> COUNTDOWN -> RUNNING -> FINISHED and
// back. All room-wide mutation happens under one mutex, and every broadcast
// is emitted inside the critical section that performed the mutation, so no
// client ever observes a snapshot the room has already superseded.
package race

import (
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"

	"keyracer/internal/prompt"
	"keyracer/internal/protocol"
	"keyracer/internal/words"
)

var (
	ErrRoomFull   = errors.New("room full")
	ErrNotInLobby = errors.New("race in progress")
	ErrNotHost    = errors.New("only the host can do that")
	ErrBadMode    = errors.New("unknown prompt mode")
)

type Config struct {
	Countdown        time.Duration
	ResultsWindow    time.Duration
	ProgressInterval time.Duration
	MaxPlayers       int
}

func DefaultConfig() Config {
	return Config{
		Countdown:        3 * time.Second,
		ResultsWindow:    10 * time.Second,
		ProgressInterval: 120 * time.Millisecond,
		MaxPlayers:       8,
	}
}

// PlayerResult is one player's line in a finished race.
type PlayerResult struct {
	Pid      string
	Name     string
	WPM      float64
	Acc      float64
	Cursor   int
	Mistakes int
	Rank     int
}

// Summary describes a race that just reached FINISHED.
type Summary struct {
	Rid        string
	PromptMode string
	Seed       uint32
	StartAtMs  int64
	Players    []PlayerResult
}

// FinishHook is called in its own goroutine whenever a race finishes.
type FinishHook func(Summary)

// Game is the sole authority for one room's state.
type Game struct {
	mu sync.Mutex

	rid        string
	status     string
	hostPid    string
	promptMode words.Mode
	seed       uint32
	startAtMs  int64
	promptText string
	nextRank   int

	// round is bumped on every countdown entry and on room teardown;
	// timers capture it and become no-ops once it moves on.
	round int

	sessions map[string]*Session
	order    []string // pids in join order

	cfg        Config
	words      *words.Provider
	onFinished FinishHook
}

func New(rid string, cfg Config, provider *words.Provider, onFinished FinishHook) *Game {
	return &Game{
		rid:        rid,
		status:     StatusLobby,
		promptMode: words.ModeShort,
		sessions:   make(map[string]*Session),
		cfg:        cfg,
		words:      provider,
		onFinished: onFinished,
	}
}

// Join adds a player. The first player to join becomes host. Joining is a
// LOBBY-only operation; mid-race joins are rejected.
func (g *Game) Join(pid, name string, out chan<- protocol.ServerMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusLobby {
		return ErrNotInLobby
	}
	if len(g.sessions) >= g.cfg.MaxPlayers {
		return ErrRoomFull
	}

	s := newSession(pid, name, g.cfg.ProgressInterval, out)
	g.sessions[pid] = s
	g.order = append(g.order, pid)
	if g.hostPid == "" {
		g.hostPid = pid
	}

	g.broadcastStateLocked()
	return nil
}

// Leave removes a player from any state. Host role passes to the oldest
// remaining player; a running race re-checks its all-finished gate since the
// leaver no longer counts toward it.
func (g *Game) Leave(pid string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sessions[pid]; !ok {
		return
	}
	delete(g.sessions, pid)
	g.order = lo.Without(g.order, pid)

	if len(g.sessions) == 0 {
		g.round++ // disarm pending timers; the registry tears us down
		return
	}
	if g.hostPid == pid {
		g.hostPid = g.order[0]
	}

	if g.status == StatusRunning && g.allFinishedLocked() {
		g.finishRaceLocked()
		return
	}
	g.broadcastStateLocked()
}

func (g *Game) SetName(pid, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[pid]
	if !ok || name == "" {
		return
	}
	s.name = name
	g.broadcastStateLocked()
}

// SetReady toggles readiness. The countdown starts from LOBBY the moment
// every present player is ready; one player alone can start a race.
func (g *Game) SetReady(pid string, ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[pid]
	if !ok {
		return
	}
	s.ready = ready

	if g.status == StatusLobby && g.allReadyLocked() {
		g.beginCountdownLocked()
		return
	}
	g.broadcastStateLocked()
}

// SetPromptMode changes the round's content category. Host-only, LOBBY-only.
func (g *Game) SetPromptMode(pid, mode string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pid != g.hostPid {
		return ErrNotHost
	}
	if g.status != StatusLobby {
		return ErrNotInLobby
	}
	if !words.ValidMode(mode) {
		return ErrBadMode
	}

	g.promptMode = words.Mode(mode)
	g.broadcastStateLocked()
	return nil
}

// Progress applies a player's self-reported cursor/mistakes. Reports are
// throttled per session and both counters are clamped monotonic; anything
// beyond that is trusted. A report reaching the prompt length, or carrying
// the finished flag, counts as a finish.
func (g *Game) Progress(pid string, cursor, mistakes int, finished bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning {
		return
	}
	s, ok := g.sessions[pid]
	if !ok || s.status == StatusFinished {
		return
	}

	if s.limiter.Allow() {
		if cursor > s.cursor {
			s.cursor = min(cursor, len(g.promptText))
		}
		if mistakes > s.mistakes {
			s.mistakes = mistakes
		}
		g.rescoreLocked(s)
		g.broadcastLocked(protocol.ServerMessage{
			Type: protocol.TypePlayerProgress,
			Rid:  g.rid,
			Data: g.progressLocked(s),
		})
	}

	if finished || s.cursor == len(g.promptText) {
		g.finishPlayerLocked(s)
	}
}

// Finish marks a player done with the prompt. Duplicate finishes are
// silently ignored.
func (g *Game) Finish(pid string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning {
		return
	}
	s, ok := g.sessions[pid]
	if !ok || s.status == StatusFinished {
		return
	}
	g.finishPlayerLocked(s)
}

// Restart begins a fresh round from the results screen without waiting out
// the display window. Readiness carried over from the finished round, so no
// re-ready pass is needed.
func (g *Game) Restart(pid string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusFinished {
		return
	}
	if _, ok := g.sessions[pid]; !ok {
		return
	}
	g.beginCountdownLocked()
}

// Snapshot returns the full room state as broadcast to clients.
func (g *Game) Snapshot() protocol.RoomState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions) == 0
}

// Prompt exposes the current round's regenerated prompt text. It is never
// sent over the wire; it exists server-side for length clamping and tests.
func (g *Game) Prompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promptText
}

func (g *Game) allReadyLocked() bool {
	if len(g.sessions) == 0 {
		return false
	}
	for _, s := range g.sessions {
		if !s.ready {
			return false
		}
	}
	return true
}

func (g *Game) allFinishedLocked() bool {
	if len(g.sessions) == 0 {
		return false
	}
	for _, s := range g.sessions {
		if s.status != StatusFinished {
			return false
		}
	}
	return true
}

// beginCountdownLocked is the COUNTDOWN entry: fresh seed, regenerated
// prompt, per-round fields reset, start time fixed a few seconds out.
func (g *Game) beginCountdownLocked() {
	g.round++
	gen := g.round

	g.status = StatusCountdown
	g.seed = newSeed()
	g.startAtMs = nowMs() + g.cfg.Countdown.Milliseconds()
	g.nextRank = 1
	g.promptText = prompt.Generate(g.seed, g.words.List(g.promptMode), words.WordCount(g.promptMode))

	for _, s := range g.sessions {
		s.resetForRound()
	}

	g.broadcastStateLocked()

	time.AfterFunc(g.cfg.Countdown, func() { g.startRunning(gen) })
}

// startRunning fires when the countdown timer elapses. The wall clock is
// re-checked under the lock: the transition is driven by startAtMs, not by
// the timer's own accounting.
func (g *Game) startRunning(gen int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusCountdown || g.round != gen {
		return
	}
	if remaining := g.startAtMs - nowMs(); remaining > 0 {
		time.AfterFunc(time.Duration(remaining)*time.Millisecond, func() { g.startRunning(gen) })
		return
	}

	g.status = StatusRunning
	g.broadcastStateLocked()
}

func (g *Game) finishPlayerLocked(s *Session) {
	s.status = StatusFinished
	s.rank = g.nextRank
	g.nextRank++
	g.rescoreLocked(s)

	g.broadcastLocked(protocol.ServerMessage{
		Type: protocol.TypePlayerProgress,
		Rid:  g.rid,
		Data: g.progressLocked(s),
	})

	if g.allFinishedLocked() {
		g.finishRaceLocked()
		return
	}
	g.broadcastStateLocked()
}

func (g *Game) finishRaceLocked() {
	g.status = StatusFinished
	g.broadcastStateLocked()

	if g.onFinished != nil {
		go g.onFinished(g.summaryLocked())
	}

	gen := g.round
	time.AfterFunc(g.cfg.ResultsWindow, func() { g.endResultsWindow(gen) })
}

// endResultsWindow returns the room to LOBBY once the results display has
// run its course, unless a restart already started the next round.
func (g *Game) endResultsWindow(gen int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusFinished || g.round != gen {
		return
	}

	g.status = StatusLobby
	for _, s := range g.sessions {
		s.status = StatusLobby
		s.ready = false
	}
	g.broadcastStateLocked()
}

// rescoreLocked derives the display metrics from the trusted counters.
func (g *Game) rescoreLocked(s *Session) {
	elapsed := nowMs() - g.startAtMs
	if elapsed < 0 {
		elapsed = 0
	}
	s.wpm = round2(computeWPM(s.cursor, elapsed))
	s.acc = round2(100.0 * computeAcc(s.cursor, s.mistakes))
}

func (g *Game) progressLocked(s *Session) protocol.ProgressUpdate {
	return protocol.ProgressUpdate{
		Pid:      s.pid,
		Cursor:   s.cursor,
		Mistakes: s.mistakes,
		WPM:      s.wpm,
		Acc:      s.acc,
		Status:   s.status,
	}
}

func (g *Game) snapshotLocked() protocol.RoomState {
	return protocol.RoomState{
		Rid:        g.rid,
		Status:     g.status,
		HostPid:    g.hostPid,
		PromptMode: string(g.promptMode),
		Seed:       g.seed,
		StartAtMs:  g.startAtMs,
		Players: lo.Map(g.order, func(pid string, _ int) protocol.PlayerState {
			return g.sessions[pid].state()
		}),
	}
}

func (g *Game) summaryLocked() Summary {
	return Summary{
		Rid:        g.rid,
		PromptMode: string(g.promptMode),
		Seed:       g.seed,
		StartAtMs:  g.startAtMs,
		Players: lo.Map(g.order, func(pid string, _ int) PlayerResult {
			s := g.sessions[pid]
			return PlayerResult{
				Pid:      s.pid,
				Name:     s.name,
				WPM:      s.wpm,
				Acc:      s.acc,
				Cursor:   s.cursor,
				Mistakes: s.mistakes,
				Rank:     s.rank,
			}
		}),
	}
}

func (g *Game) broadcastStateLocked() {
	g.broadcastLocked(protocol.ServerMessage{
		Type: protocol.TypeRoomState,
		Rid:  g.rid,
		Data: g.snapshotLocked(),
	})
}

func (g *Game) broadcastLocked(msg protocol.ServerMessage) {
	for _, s := range g.sessions {
		select {
		case s.out <- msg:
		default:
			// Slow consumer; drop rather than stall the room.
		}
	}
}

package rooms

import (
	"fmt"
	"log"
	"sync"
	"time"

	"keyracer/internal/race"
	"keyracer/internal/words"
)

// Abandoned rooms are reaped even if a session handle leaked somewhere.
const staleTTL = 12 * time.Hour

type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room

	cfg        race.Config
	words      *words.Provider
	onFinished race.FinishHook // nil when no results recording is wired
}

func NewStore(cfg race.Config, provider *words.Provider, onFinished race.FinishHook) *Store {
	s := &Store{
		rooms:      make(map[string]*Room),
		cfg:        cfg,
		words:      provider,
		onFinished: onFinished,
	}
	go s.sweepStale()
	return s
}

func (s *Store) Create() (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code
	for i := 0; i < 10; i++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}

		room := &Room{
			Code:      code,
			Game:      race.New(code, s.cfg, s.words, s.onFinished),
			CreatedAt: time.Now(),
		}
		s.rooms[code] = room
		log.Printf("[Rooms] created rid=%s", code)
		return room, nil
	}
	return nil, fmt.Errorf("failed to generate unique room code after 10 attempts")
}

func (s *Store) Get(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[code]
}

// MaybeDelete tears the room down once its last session is gone.
func (s *Store) MaybeDelete(code string) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return
	}
	empty := room.Game.Empty()
	if empty {
		delete(s.rooms, code)
	}
	s.mu.Unlock()

	if empty {
		log.Printf("[Rooms] deleted rid=%s", code)
	}
}

func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	return list
}

func (s *Store) sweepStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for code, room := range s.rooms {
			if room.Game.Empty() || now.Sub(room.CreatedAt) > staleTTL {
				delete(s.rooms, code)
				log.Printf("[Rooms] swept rid=%s", code)
			}
		}
		s.mu.Unlock()
	}
}

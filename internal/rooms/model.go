package rooms

import (
	"time"

	"keyracer/internal/race"
)

// Room pairs a join code with the Game that owns all of its state.
type Room struct {
	Code      string
	Game      *race.Game
	CreatedAt time.Time
}

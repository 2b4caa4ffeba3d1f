package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"keyracer/internal/config"
	"keyracer/internal/db"
	"keyracer/internal/race"
	"keyracer/internal/rooms"
	"keyracer/internal/words"
	"keyracer/internal/wshub"
)

func Run() error {
	_ = godotenv.Load()
	appCfg := config.Load()

	provider, err := words.Load(appCfg.WordsDir)
	if err != nil {
		return fmt.Errorf("loading word lists: %w", err)
	}

	raceCfg := race.Config{
		Countdown:        time.Duration(appCfg.CountdownMs) * time.Millisecond,
		ResultsWindow:    time.Duration(appCfg.ResultsWindowMs) * time.Millisecond,
		ProgressInterval: time.Duration(appCfg.ProgressIntervalMs) * time.Millisecond,
		MaxPlayers:       appCfg.MaxPlayers,
	}

	srv := &Server{Hub: wshub.NewHub()}

	// Optional database connection
	var onFinished race.FinishHook
	if appCfg.DatabaseURL != "" {
		database, err := db.Connect(appCfg.DatabaseURL)
		if err != nil {
			log.Printf("[DB] Failed to connect: %v (running without database)\n", err)
		} else {
			if err := database.Migrate(); err != nil {
				log.Printf("[DB] Migration failed: %v\n", err)
			}
			srv.DB = database
			onFinished = func(s race.Summary) {
				if err := database.RecordRace(s); err != nil {
					log.Printf("[DB] RecordRace error: %v\n", err)
				}
			}
			log.Println("[DB] Database connected and migrations applied")
		}
	} else {
		log.Println("[DB] DATABASE_URL not set, running without database")
	}

	srv.Rooms = rooms.NewStore(raceCfg, provider, onFinished)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/leaderboard", srv.handleLeaderboard)

	addr := "0.0.0.0:" + appCfg.Port
	fmt.Printf("Server listening on http://localhost:%s\n", appCfg.Port)
	return http.ListenAndServe(addr, mux)
}

package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	WordsDir           string // empty = use the embedded word lists
	CountdownMs        int
	ResultsWindowMs    int
	ProgressIntervalMs int // minimum gap between accepted progress reports
	MaxPlayers         int
}

func Load() Config {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		WordsDir:           os.Getenv("WORDS_DIR"),
		CountdownMs:        getEnvInt("COUNTDOWN_MS", 3000),
		ResultsWindowMs:    getEnvInt("RESULTS_WINDOW_MS", 10000),
		ProgressIntervalMs: getEnvInt("PROGRESS_INTERVAL_MS", 120),
		MaxPlayers:         getEnvInt("MAX_PLAYERS", 8),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

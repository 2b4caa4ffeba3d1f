package db

import (
	"fmt"
	"time"

	"keyracer/internal/race"
)

// RecordRace persists a finished race and every participant's result.
func (d *DB) RecordRace(s race.Summary) error {
	var raceID string
	err := d.conn.QueryRow(`
		INSERT INTO races (room_code, prompt_mode, seed, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.Rid, s.PromptMode, int64(s.Seed), time.UnixMilli(s.StartAtMs)).Scan(&raceID)
	if err != nil {
		return fmt.Errorf("recording race: %w", err)
	}

	for _, p := range s.Players {
		_, err := d.conn.Exec(`
			INSERT INTO race_players (race_id, pid, name, wpm, acc, mistakes, rank)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, raceID, p.Pid, p.Name, p.WPM, p.Acc, p.Mistakes, p.Rank)
		if err != nil {
			return fmt.Errorf("recording race player %s: %w", p.Pid, err)
		}
	}
	return nil
}

// ResultRow is one leaderboard entry.
type ResultRow struct {
	Name       string    `json:"name"`
	WPM        float64   `json:"wpm"`
	Acc        float64   `json:"acc"`
	PromptMode string    `json:"promptMode"`
	FinishedAt time.Time `json:"finishedAt"`
}

// BestResults returns the fastest recorded finishes, best first.
func (d *DB) BestResults(limit int) ([]ResultRow, error) {
	rows, err := d.conn.Query(`
		SELECT rp.name, rp.wpm, rp.acc, r.prompt_mode, r.finished_at
		FROM race_players rp
		JOIN races r ON r.id = rp.race_id
		ORDER BY rp.wpm DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying best results: %w", err)
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var row ResultRow
		if err := rows.Scan(&row.Name, &row.WPM, &row.Acc, &row.PromptMode, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

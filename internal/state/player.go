package state

import (
	"database/sql"
	"errors"

	dbutil "github.com/lcourbon/cadence/internal/db"
)

// PlayerState represents the saved player settings.
type PlayerState struct {
	Volume              float64
	Muted               bool
	PreferredQuality    string
	LastTrackID         string
	LastPositionSeconds float64
}

// GetPlayer returns the saved player state, or defaults when nothing was saved.
func (m *Manager) GetPlayer() (*PlayerState, error) {
	var s PlayerState
	var lastTrackID sql.NullString

	row := m.db.QueryRow(`
		SELECT volume, muted, preferred_quality, last_track_id, last_position_seconds
		FROM player_state WHERE id = 1
	`)
	err := row.Scan(&s.Volume, &s.Muted, &s.PreferredQuality, &lastTrackID, &s.LastPositionSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return &PlayerState{Volume: 1.0, PreferredQuality: "auto"}, nil
	}
	if err != nil {
		return nil, err
	}

	s.LastTrackID = dbutil.NullStringValue(lastTrackID)
	return &s, nil
}

// SavePlayer persists the player settings.
func (m *Manager) SavePlayer(s PlayerState) error {
	var lastTrackID any
	if s.LastTrackID != "" {
		lastTrackID = s.LastTrackID
	}
	_, err := m.db.Exec(`
		INSERT INTO player_state (id, volume, muted, preferred_quality, last_track_id, last_position_seconds)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume,
			muted = excluded.muted,
			preferred_quality = excluded.preferred_quality,
			last_track_id = excluded.last_track_id,
			last_position_seconds = excluded.last_position_seconds
	`, s.Volume, s.Muted, s.PreferredQuality, lastTrackID, s.LastPositionSeconds)
	return err
}

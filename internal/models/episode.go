package models

import "time"

type EpisodeSource string

const (
	EpisodeSourceLive      EpisodeSource = "live"
	EpisodeSourceHistory   EpisodeSource = "history"
	EpisodeSourceSynthetic EpisodeSource = "synthetic"
)

// Episode is one alert lifecycle for an area, from first detection to removal.
type Episode struct {
	ID        string        `json:"id"`
	Area      string        `json:"area"`
	Type      AlertType     `json:"type,omitempty"`
	MigunTime int           `json:"migun_time"`
	Source    EpisodeSource `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
)

type Filter struct {
	Limit    int
	Offset   int
	Area     string
	Since    *time.Time
	OpenOnly bool // only episodes that have not ended yet
}

// EpisodeRepository is an append-mostly audit log of alert episodes. It is never
// read back into the alert store.
type EpisodeRepository interface {
	StartEpisode(ctx context.Context, ep *models.Episode) error
	EndEpisode(ctx context.Context, area string, source models.EpisodeSource, endedAt time.Time) (int64, error)
	ListEpisodes(ctx context.Context, opts Filter) ([]models.Episode, error)
}

package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/worker"
)

const journalWriteTimeout = 2 * time.Second

// Journal records alert lifecycles from the store into the episode log.
// With a pool, writes are queued and the caller returns immediately; the pool
// must have a single worker so an episode's end is never written before its start.
// Without a pool, writes happen inline. Failures are logged.
type Journal struct {
	repo EpisodeRepository
	pool *worker.WorkerPool
}

func NewJournal(repo EpisodeRepository, pool *worker.WorkerPool) *Journal {
	return &Journal{repo: repo, pool: pool}
}

func (j *Journal) RecordStarted(rec models.AlertRecord, source models.EpisodeSource) {
	ep := &models.Episode{
		ID:        uuid.NewString(),
		Area:      rec.Area,
		Type:      rec.Type,
		MigunTime: rec.MigunTime,
		Source:    source,
		StartedAt: time.UnixMilli(rec.StartedAt),
	}
	j.run("start", rec.Area, func(ctx context.Context) error {
		return j.repo.StartEpisode(ctx, ep)
	})
}

func (j *Journal) RecordEnded(rec models.AlertRecord, source models.EpisodeSource, at time.Time) {
	j.run("end", rec.Area, func(ctx context.Context) error {
		_, err := j.repo.EndEpisode(ctx, rec.Area, source, at)
		return err
	})
}

func (j *Journal) run(op, area string, write func(ctx context.Context) error) {
	job := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			slog.Error("error journaling episode", "op", op, "area", area, "error", err)
		}
		return nil
	}

	if j.pool == nil {
		job(context.Background())
		return
	}
	if !j.pool.Submit(job) {
		slog.Warn("episode journal queue full, write dropped", "op", op, "area", area)
	}
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
)

const defaultListLimit = 50

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			area TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			migun_time INTEGER NOT NULL,
			source TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_episodes_area ON episodes(area);
		CREATE INDEX IF NOT EXISTS idx_episodes_started_at ON episodes(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) StartEpisode(ctx context.Context, ep *models.Episode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, area, type, migun_time, source, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Area, string(ep.Type), ep.MigunTime, string(ep.Source), ep.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error inserting episode %s: %w", ep.ID, err)
	}
	return nil
}

// EndEpisode closes every open episode for the area from the given source.
func (s *SQLiteDB) EndEpisode(ctx context.Context, area string, source models.EpisodeSource, endedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET ended_at = ? WHERE area = ? AND source = ? AND ended_at IS NULL`,
		endedAt.UnixMilli(), area, string(source),
	)
	if err != nil {
		return 0, fmt.Errorf("error ending episode for %s: %w", area, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) ListEpisodes(ctx context.Context, opts Filter) ([]models.Episode, error) {
	var (
		where []string
		args  []any
	)
	if opts.Area != "" {
		where = append(where, "area = ?")
		args = append(args, opts.Area)
	}
	if opts.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.OpenOnly {
		where = append(where, "ended_at IS NULL")
	}

	query := `SELECT id, area, type, migun_time, source, started_at, ended_at FROM episodes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing episodes: %w", err)
	}
	defer rows.Close()

	episodes := []models.Episode{}
	for rows.Next() {
		var (
			ep         models.Episode
			alertType  string
			source     string
			startedAt  int64
			endedAtRaw sql.NullInt64
		)
		if err := rows.Scan(&ep.ID, &ep.Area, &alertType, &ep.MigunTime, &source, &startedAt, &endedAtRaw); err != nil {
			return nil, fmt.Errorf("error scanning episode: %w", err)
		}
		ep.Type = models.AlertType(alertType)
		ep.Source = models.EpisodeSource(source)
		ep.StartedAt = time.UnixMilli(startedAt)
		if endedAtRaw.Valid {
			ended := time.UnixMilli(endedAtRaw.Int64)
			ep.EndedAt = &ended
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

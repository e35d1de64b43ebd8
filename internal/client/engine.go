// Package client keeps a local, clock-corrected copy of the server snapshot.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
)

const (
	DefaultPollInterval = 2000 * time.Millisecond
	fetchTimeout        = 5 * time.Second
	maxSnapshotBytes    = 1 << 20
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")

// State is replaced as a whole on every poll; readers never see a mix of two polls.
type State struct {
	Alerts     []models.AlertRecord
	Notice     *models.EarlyWarningNotice
	Offset     int64 // server_time minus local time at receipt, ms
	ServerTime int64
	Synced     bool  // at least one poll succeeded
	Err        error // last poll failure, nil after a success
}

type Engine struct {
	url      string
	client   *http.Client
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	state atomic.Pointer[State]
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine polling baseURL + /api/alerts.
func New(baseURL string, opts ...Option) *Engine {
	e := &Engine{
		url:      strings.TrimRight(baseURL, "/") + "/api/alerts",
		client:   &http.Client{Timeout: fetchTimeout},
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(&State{})
	return e
}

// Run polls immediately and then on a fixed interval until ctx is cancelled.
// Failures never change the interval.
func (e *Engine) Run(ctx context.Context) {
	e.pollAndLog(ctx)

	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.pollAndLog(ctx)
		}
	}
}

func (e *Engine) pollAndLog(ctx context.Context) {
	if err := e.Poll(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("snapshot poll failed", "error", err)
	}
}

// Poll runs one fetch cycle. On failure the previous alerts, notice and offset
// are kept and only Err changes.
func (e *Engine) Poll(ctx context.Context) error {
	snap, err := e.fetch(ctx)
	if err != nil {
		prev := e.state.Load()
		next := *prev
		next.Err = err
		e.state.Store(&next)
		return err
	}

	localNow := e.clock.Now().UnixMilli()
	alerts := snap.Alerts
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	e.state.Store(&State{
		Alerts:     alerts,
		Notice:     snap.NewsFlash,
		Offset:     snap.ServerTime - localNow,
		ServerTime: snap.ServerTime,
		Synced:     true,
	})
	return nil
}

func (e *Engine) fetch(ctx context.Context) (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var snap models.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotBytes)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if snap.ServerTime <= 0 {
		return nil, fmt.Errorf("%w: missing server_time", ErrMalformedSnapshot)
	}
	return &snap, nil
}

// State returns the latest state. The returned value must not be mutated.
func (e *Engine) State() State {
	return *e.state.Load()
}

// RemainingTime is the seconds left before the record's migun time runs out,
// measured on the server's clock.
func (e *Engine) RemainingTime(rec models.AlertRecord) float64 {
	st := e.state.Load()
	now := e.clock.Now().UnixMilli() + st.Offset
	elapsed := float64(now-rec.StartedAt) / 1000
	return max(0, float64(rec.MigunTime)-elapsed)
}

// Find returns the record for the selected area, if one is active.
func (e *Engine) Find(area string) (models.AlertRecord, bool) {
	if area == "" {
		return models.AlertRecord{}, false
	}
	for _, rec := range e.state.Load().Alerts {
		if rec.Area == area {
			return rec, true
		}
	}
	return models.AlertRecord{}, false
}

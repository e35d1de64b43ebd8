// Package ingestion polls the live and history alert feeds and feeds the
// normalized result into the alert store.
package ingestion

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-shelter-alerts/internal/config"
	"github.com/mr1hm/go-shelter-alerts/internal/metrics"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
)

const (
	feedLive    = "live"
	feedHistory = "history"

	reasonTestMarker = "test_marker"
	reasonDrill      = "drill"
	reasonStale      = "stale"
	reasonEventEnded = "event_ended"
	reasonBadDate    = "bad_date"
)

type Manager struct {
	cfg     config.FeedsConfig
	store   *store.Store
	metrics *metrics.Metrics
	clock   clockwork.Clock
	client  *http.Client
	loc     *time.Location

	startOnce sync.Once
	wg        sync.WaitGroup
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

func NewManager(cfg config.FeedsConfig, st *store.Store, mtr *metrics.Metrics, opts ...Option) *Manager {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		slog.Warn("falling back to fixed UTC+2 for history dates", "error", err)
		loc = time.FixedZone("IST", 2*60*60)
	}

	m := &Manager{
		cfg:     cfg,
		store:   st,
		metrics: mtr,
		clock:   clockwork.NewRealClock(),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		loc: loc,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewMetricsForTesting()
	}
	return m
}

// Start launches one poller per enabled feed. Calling it again is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.cfg.LiveEnabled {
			m.wg.Add(1)
			go m.runPoller(ctx, feedLive, m.cfg.LivePollInterval)
		}

		if m.cfg.HistoryEnabled {
			m.wg.Add(1)
			go m.runPoller(ctx, feedHistory, m.cfg.HistoryPollInterval)
		}
	})
}

// runPoller polls at a fixed interval. Failures are logged and retried on the
// next tick without backoff.
func (m *Manager) runPoller(ctx context.Context, feed string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "feed", feed, "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, feed)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "feed", feed)
			return
		case <-ticker.Chan():
			m.poll(ctx, feed)
		}
	}
}

func (m *Manager) poll(ctx context.Context, feed string) {
	slog.Debug("polling", "feed", feed)
	start := m.clock.Now()

	var err error
	switch feed {
	case feedLive:
		err = m.pollLive(ctx)
	case feedHistory:
		err = m.pollHistory(ctx)
	}

	m.metrics.FeedPollDuration.WithLabelValues(feed).Observe(m.clock.Since(start).Seconds())
	if err != nil {
		m.metrics.FeedPolls.WithLabelValues(feed, "error").Inc()
		slog.Error("poll failed", "feed", feed, "error", err)
		return
	}
	m.metrics.FeedPolls.WithLabelValues(feed, "success").Inc()
}

func (m *Manager) pollLive(ctx context.Context) error {
	feed, err := m.fetchLive(ctx)
	if err != nil {
		// Synthetic records and the notice still age out while the feed is down.
		m.store.Sweep()
		return err
	}

	scan := m.normalizeLive(feed)
	m.recordFiltered(feedLive, scan.filtered)

	if scan.notice != nil {
		m.store.SetNotice(*scan.notice, store.NoticeFromLive)
	}
	ev := m.store.ApplyLive(scan.reports)

	slog.Debug("poll complete", "feed", feedLive, "areas", len(scan.reports), "added", len(ev.Added), "removed", len(ev.Removed))
	return nil
}

func (m *Manager) pollHistory(ctx context.Context) error {
	history, err := m.fetchHistory(ctx)
	if err != nil {
		return err
	}

	scan := m.normalizeHistory(history)
	m.recordFiltered(feedHistory, scan.filtered)

	if scan.notice != nil {
		m.store.SetNotice(*scan.notice, store.NoticeFromHistory)
	}
	ev := m.store.ApplyHistory(scan.reports)

	slog.Debug("poll complete", "feed", feedHistory, "entries", len(history), "added", len(ev.Added))
	return nil
}

func (m *Manager) recordFiltered(feed string, filtered map[string]int) {
	for reason, n := range filtered {
		m.metrics.FeedFiltered.WithLabelValues(feed, reason).Add(float64(n))
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	slog.Info("ingestion manager stopped")
}

// Package store holds the authoritative per-area alert table, the singleton
// early-warning notice and the expiry state machine that drives both.
//
// Per area a record moves NONE -> ACTIVE on its first report, stays ACTIVE
// (started_at untouched) while reported, and is REMOVED once it is absent from a
// live scan and older than migun_time plus the grace window. A later report
// starts a fresh record.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-shelter-alerts/internal/metrics"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
)

// Catalog resolves an area's migun_time, falling back to the default for unknown areas.
type Catalog interface {
	MigunTime(area string) int
}

// Observer is told about record lifecycles after the store lock is released.
type Observer interface {
	RecordStarted(rec models.AlertRecord, source models.EpisodeSource)
	RecordEnded(rec models.AlertRecord, source models.EpisodeSource, at time.Time)
}

// Report is one area seen in a feed scan, already normalized and filtered.
type Report struct {
	Area         string
	Type         models.AlertType
	Instructions string
	ReportedAt   time.Time // upstream event time; zero for live scans
}

// replayWindow bounds how long a removal is remembered for history replay checks.
// It only needs to outlast the history feed's own staleness cutoff.
const replayWindow = 10 * time.Minute

// NoticeSource selects the overwrite rule for an early-warning notice.
type NoticeSource string

const (
	NoticeFromLive    NoticeSource = "live"
	NoticeFromHistory NoticeSource = "history"
)

type entry struct {
	rec    models.AlertRecord
	source models.EpisodeSource
}

type lifecycle struct {
	rec    models.AlertRecord
	source models.EpisodeSource
}

type Store struct {
	catalog     Catalog
	clock       clockwork.Clock
	metrics     *metrics.Metrics
	broadcaster *stream.Broadcaster
	observer    Observer
	logger      *slog.Logger

	mu       sync.RWMutex
	records  map[string]*entry
	removed  map[string]time.Time // area -> when its last real record was removed
	injected map[string]models.AlertRecord
	notice   *models.EarlyWarningNotice
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithBroadcaster(b *stream.Broadcaster) Option {
	return func(s *Store) { s.broadcaster = b }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(catalog Catalog, opts ...Option) *Store {
	s := &Store{
		catalog:  catalog,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		records:  make(map[string]*entry),
		removed:  make(map[string]time.Time),
		injected: make(map[string]models.AlertRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetricsForTesting()
	}
	return s
}

// Close drops all state and disconnects stream subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	s.records = make(map[string]*entry)
	s.removed = make(map[string]time.Time)
	s.injected = make(map[string]models.AlertRecord)
	s.notice = nil
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
}

// ApplyLive ingests a complete live-feed scan. Areas in the scan are created if
// new and left untouched otherwise; tracked areas missing from the scan are
// removed once past migun_time plus the grace window.
func (s *Store) ApplyLive(reports []Report) stream.Event {
	now := s.clock.Now()
	seen := make(map[string]struct{}, len(reports))

	s.mu.Lock()
	var started, ended []lifecycle
	for _, r := range reports {
		seen[r.Area] = struct{}{}
		if lc, ok := s.createLocked(r, models.EpisodeSourceLive, now); ok {
			started = append(started, lc)
		}
	}
	for area, e := range s.records {
		if _, present := seen[area]; present {
			continue
		}
		if e.rec.Expired(now) {
			delete(s.records, area)
			s.removed[area] = now
			ended = append(ended, lifecycle{rec: e.rec, source: e.source})
		}
	}
	for area, at := range s.removed {
		if now.Sub(at) > replayWindow {
			delete(s.removed, area)
		}
	}
	endedInjected, noticeCleared := s.sweepLocked(now)
	ended = append(ended, endedInjected...)
	s.mu.Unlock()

	return s.publish(now, started, ended, noticeCleared)
}

// ApplyHistory creates records for areas the live feed has not reported yet.
// History is a backfill, so it never refreshes or removes anything. An entry
// dated at or before the removal of the area's last record belongs to that
// finished episode and is skipped.
func (s *Store) ApplyHistory(reports []Report) stream.Event {
	now := s.clock.Now()

	s.mu.Lock()
	var started []lifecycle
	for _, r := range reports {
		if removedAt, ok := s.removed[r.Area]; ok && !r.ReportedAt.After(removedAt) {
			continue
		}
		if lc, ok := s.createLocked(r, models.EpisodeSourceHistory, now); ok {
			started = append(started, lc)
		}
	}
	s.mu.Unlock()

	return s.publish(now, started, nil, false)
}

// Sweep expires injected records and a stale notice. Real records are only
// removed by ApplyLive, which knows whether they are still reported.
func (s *Store) Sweep() stream.Event {
	now := s.clock.Now()

	s.mu.Lock()
	ended, noticeCleared := s.sweepLocked(now)
	s.mu.Unlock()

	return s.publish(now, nil, ended, noticeCleared)
}

func (s *Store) createLocked(r Report, source models.EpisodeSource, now time.Time) (lifecycle, bool) {
	if r.Area == "" {
		return lifecycle{}, false
	}
	if _, exists := s.records[r.Area]; exists {
		return lifecycle{}, false
	}
	rec := models.AlertRecord{
		Area:         r.Area,
		MigunTime:    s.catalog.MigunTime(r.Area),
		StartedAt:    now.UnixMilli(),
		Type:         r.Type,
		Instructions: r.Instructions,
	}
	s.records[r.Area] = &entry{rec: rec, source: source}
	return lifecycle{rec: rec, source: source}, true
}

func (s *Store) sweepLocked(now time.Time) ([]lifecycle, bool) {
	var ended []lifecycle
	for area, rec := range s.injected {
		if rec.Expired(now) {
			delete(s.injected, area)
			ended = append(ended, lifecycle{rec: rec, source: models.EpisodeSourceSynthetic})
		}
	}
	noticeCleared := false
	if s.notice != nil && s.notice.Expired(now) {
		s.notice = nil
		noticeCleared = true
	}
	return ended, noticeCleared
}

// SetNotice applies the overwrite rule: a live notice always replaces the current
// one, a history notice only when strictly newer. Reports whether it was applied.
func (s *Store) SetNotice(n models.EarlyWarningNotice, source NoticeSource) bool {
	n.Type = models.AlertTypeNewsFlash
	if n.Areas == nil {
		n.Areas = []string{}
	}

	s.mu.Lock()
	applied := source == NoticeFromLive || s.notice == nil || n.Timestamp > s.notice.Timestamp
	if applied {
		s.notice = &n
	}
	s.mu.Unlock()

	result := "rejected"
	if applied {
		result = "applied"
		s.logger.Info("early warning notice updated", "source", source, "timestamp", n.Timestamp, "areas", len(n.Areas))
		s.broadcast(stream.Event{NoticeChanged: true})
	}
	s.metrics.NoticeUpdates.WithLabelValues(string(source), result).Inc()
	return applied
}

func (s *Store) ClearNotice() {
	s.mu.Lock()
	had := s.notice != nil
	s.notice = nil
	s.mu.Unlock()

	if had {
		s.broadcast(stream.Event{NoticeChanged: true})
	}
}

// Upsert injects a synthetic record, restarting its countdown.
func (s *Store) Upsert(area string, migunTime int) models.AlertRecord {
	now := s.clock.Now()
	rec := models.AlertRecord{
		Area:      area,
		MigunTime: migunTime,
		StartedAt: now.UnixMilli(),
	}

	s.mu.Lock()
	prev, replaced := s.injected[area]
	s.injected[area] = rec
	s.mu.Unlock()

	var ended []lifecycle
	if replaced {
		ended = append(ended, lifecycle{rec: prev, source: models.EpisodeSourceSynthetic})
	}
	s.logger.Info("synthetic alert injected", "area", area, "migun_time", migunTime)
	s.publish(now, []lifecycle{{rec: rec, source: models.EpisodeSourceSynthetic}}, ended, false)
	return rec
}

// Clear drops every synthetic record.
func (s *Store) Clear() {
	now := s.clock.Now()

	s.mu.Lock()
	ended := make([]lifecycle, 0, len(s.injected))
	for _, rec := range s.injected {
		ended = append(ended, lifecycle{rec: rec, source: models.EpisodeSourceSynthetic})
	}
	s.injected = make(map[string]models.AlertRecord)
	s.mu.Unlock()

	s.publish(now, nil, ended, false)
}

// Snapshot builds a fresh view on every call. Synthetic records shadow real ones
// for the same area.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	merged := make(map[string]models.AlertRecord, len(s.records)+len(s.injected))
	for area, e := range s.records {
		merged[area] = e.rec
	}
	for area, rec := range s.injected {
		merged[area] = rec
	}

	alerts := make([]models.AlertRecord, 0, len(merged))
	for _, rec := range merged {
		if !rec.Expired(now) {
			alerts = append(alerts, rec)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].StartedAt != alerts[j].StartedAt {
			return alerts[i].StartedAt < alerts[j].StartedAt
		}
		return alerts[i].Area < alerts[j].Area
	})

	var notice *models.EarlyWarningNotice
	if s.notice != nil && !s.notice.Expired(now) {
		n := *s.notice
		n.Areas = append(make([]string, 0, len(s.notice.Areas)), s.notice.Areas...)
		notice = &n
	}

	return models.Snapshot{
		Alerts:     alerts,
		NewsFlash:  notice,
		ServerTime: now.UnixMilli(),
	}
}

// Tracked reports whether a real (non-synthetic) record exists for the area.
func (s *Store) Tracked(area string) (models.AlertRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[area]
	if !ok {
		return models.AlertRecord{}, false
	}
	return e.rec, true
}

func (s *Store) publish(now time.Time, started, ended []lifecycle, noticeChanged bool) stream.Event {
	ev := stream.Event{NoticeChanged: noticeChanged}

	// Endings first so a replaced record is closed before its successor opens.
	for _, lc := range ended {
		ev.Removed = append(ev.Removed, lc.rec.Area)
		s.metrics.RecordsRemoved.Inc()
		s.logger.Info("alert ended", "area", lc.rec.Area, "source", lc.source)
		if s.observer != nil {
			s.observer.RecordEnded(lc.rec, lc.source, now)
		}
	}
	for _, lc := range started {
		ev.Added = append(ev.Added, lc.rec.Area)
		s.metrics.RecordsCreated.WithLabelValues(string(lc.source)).Inc()
		s.logger.Info("new alert", "area", lc.rec.Area, "migun_time", lc.rec.MigunTime, "type", lc.rec.Type, "source", lc.source)
		if s.observer != nil {
			s.observer.RecordStarted(lc.rec, lc.source)
		}
	}
	if noticeChanged {
		s.logger.Info("early warning notice expired")
	}

	s.mu.RLock()
	s.metrics.ActiveAlerts.Set(float64(len(s.records) + len(s.injected)))
	s.mu.RUnlock()

	if !ev.Empty() {
		s.broadcast(ev)
	}
	return ev
}

func (s *Store) broadcast(ev stream.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ev)
	}
}

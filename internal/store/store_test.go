package store

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-shelter-alerts/internal/catalog"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
)

var epoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	cat := catalog.New([]models.Area{
		{Name: "A", MigunTime: 60},
		{Name: "Sderot", MigunTime: 15},
	})
	opts = append([]Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(cat, opts...), clock
}

func live(areas ...string) []Report {
	reports := make([]Report, 0, len(areas))
	for _, a := range areas {
		reports = append(reports, Report{Area: a, Type: models.AlertTypeMissiles})
	}
	return reports
}

type recordingObserver struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (o *recordingObserver) RecordStarted(rec models.AlertRecord, _ models.EpisodeSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, rec.Area)
}

func (o *recordingObserver) RecordEnded(rec models.AlertRecord, _ models.EpisodeSource, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, rec.Area)
}

func TestApplyLive_CreatesRecordFromCatalog(t *testing.T) {
	s, _ := newTestStore(t)

	ev := s.ApplyLive([]Report{{Area: "A", Type: models.AlertTypeMissiles, Instructions: "enter shelter"}, {Area: "Unlisted"}})

	assert.ElementsMatch(t, []string{"A", "Unlisted"}, ev.Added)
	snap := s.Snapshot()
	require.Len(t, snap.Alerts, 2)

	byArea := map[string]models.AlertRecord{}
	for _, a := range snap.Alerts {
		byArea[a.Area] = a
	}
	assert.Equal(t, 60, byArea["A"].MigunTime)
	assert.Equal(t, epoch.UnixMilli(), byArea["A"].StartedAt)
	assert.Equal(t, models.AlertTypeMissiles, byArea["A"].Type)
	assert.Equal(t, "enter shelter", byArea["A"].Instructions)
	assert.Equal(t, models.DefaultMigunTime, byArea["Unlisted"].MigunTime)
}

func TestApplyLive_StartTimeIsIdempotent(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	for i := 0; i < 25; i++ {
		clock.Advance(2 * time.Second)
		ev := s.ApplyLive([]Report{{Area: "A", Type: models.AlertTypeHostileAircraft}})
		assert.Empty(t, ev.Added)
	}

	rec, ok := s.Tracked("A")
	require.True(t, ok)
	assert.Equal(t, epoch.UnixMilli(), rec.StartedAt)
	assert.Equal(t, models.AlertTypeMissiles, rec.Type, "re-reports must not mutate the record")
}

func TestApplyLive_Hysteresis(t *testing.T) {
	// Scenario: migun 60, reported until t=70, present at 89, gone at 91.
	s, clock := newTestStore(t)

	for elapsed := 0; elapsed <= 70; elapsed += 2 {
		s.ApplyLive(live("A"))
		clock.Advance(2 * time.Second)
	}

	// Loop left the clock at t=72.
	clock.Advance(17 * time.Second)
	s.ApplyLive(live())
	_, ok := s.Tracked("A")
	assert.True(t, ok, "record must survive within migun_time + grace")
	assert.Len(t, s.Snapshot().Alerts, 1)

	clock.Advance(time.Second)
	s.ApplyLive(live())
	_, ok = s.Tracked("A")
	assert.True(t, ok, "elapsed == migun_time + grace is not yet expired")

	clock.Advance(time.Second)
	ev := s.ApplyLive(live())
	assert.Equal(t, []string{"A"}, ev.Removed)
	_, ok = s.Tracked("A")
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot().Alerts)
}

func TestApplyLive_ShortGapDoesNotRemove(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	clock.Advance(2 * time.Second)
	s.ApplyLive(live())
	clock.Advance(2 * time.Second)
	s.ApplyLive(live())
	clock.Advance(2 * time.Second)
	s.ApplyLive(live("A"))

	rec, ok := s.Tracked("A")
	require.True(t, ok)
	assert.Equal(t, epoch.UnixMilli(), rec.StartedAt)
}

func TestApplyLive_PresentRecordIsNeverRemoved(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	clock.Advance(5 * time.Minute)
	ev := s.ApplyLive(live("A"))

	assert.Empty(t, ev.Removed)
	_, ok := s.Tracked("A")
	assert.True(t, ok)
	// The snapshot still bounds visibility by elapsed time.
	assert.Empty(t, s.Snapshot().Alerts)
}

func TestApplyLive_ReentryStartsFreshRecord(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	clock.Advance(100 * time.Second)
	s.ApplyLive(live())
	_, ok := s.Tracked("A")
	require.False(t, ok)

	clock.Advance(10 * time.Second)
	ev := s.ApplyLive(live("A"))
	assert.Equal(t, []string{"A"}, ev.Added)

	rec, ok := s.Tracked("A")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(110*time.Second).UnixMilli(), rec.StartedAt)
}

func TestApplyHistory_OnlyCreates(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	clock.Advance(10 * time.Second)
	ev := s.ApplyHistory(live("A", "Sderot"))

	assert.Equal(t, []string{"Sderot"}, ev.Added)
	rec, _ := s.Tracked("A")
	assert.Equal(t, epoch.UnixMilli(), rec.StartedAt)

	// History scans never sweep.
	clock.Advance(10 * time.Minute)
	ev = s.ApplyHistory(nil)
	assert.Empty(t, ev.Removed)
	_, ok := s.Tracked("Sderot")
	assert.True(t, ok)
}

func TestApplyHistory_SkipsEntriesOfRemovedEpisode(t *testing.T) {
	s, clock := newTestStore(t)
	reportedAt := epoch

	s.ApplyHistory([]Report{{Area: "A", ReportedAt: reportedAt}})
	clock.Advance(91 * time.Second)
	ev := s.ApplyLive(nil)
	require.Equal(t, []string{"A"}, ev.Removed)
	removedAt := clock.Now()

	clock.Advance(5 * time.Second)
	ev = s.ApplyHistory([]Report{{Area: "A", ReportedAt: reportedAt}})
	assert.Empty(t, ev.Added)
	ev = s.ApplyHistory([]Report{{Area: "A", ReportedAt: removedAt}})
	assert.Empty(t, ev.Added)

	ev = s.ApplyHistory([]Report{{Area: "A", ReportedAt: removedAt.Add(time.Second)}})
	assert.Equal(t, []string{"A"}, ev.Added)
}

func TestSetNotice_OverwriteRules(t *testing.T) {
	// Scenario: live notice ts=100, then history ts=50 is discarded, then live always replaces.
	s, _ := newTestStore(t)

	assert.True(t, s.SetNotice(models.EarlyWarningNotice{Instructions: "live", Timestamp: epoch.UnixMilli() + 100}, NoticeFromLive))
	assert.False(t, s.SetNotice(models.EarlyWarningNotice{Instructions: "history", Timestamp: epoch.UnixMilli() + 50}, NoticeFromHistory))
	assert.Equal(t, "live", s.Snapshot().NewsFlash.Instructions)

	assert.False(t, s.SetNotice(models.EarlyWarningNotice{Instructions: "same", Timestamp: epoch.UnixMilli() + 100}, NoticeFromHistory),
		"equal timestamp is not strictly newer")

	assert.True(t, s.SetNotice(models.EarlyWarningNotice{Instructions: "older live", Timestamp: epoch.UnixMilli() + 10}, NoticeFromLive))
	snap := s.Snapshot()
	require.NotNil(t, snap.NewsFlash)
	assert.Equal(t, "older live", snap.NewsFlash.Instructions)
	assert.Equal(t, models.AlertTypeNewsFlash, snap.NewsFlash.Type)
	assert.NotNil(t, snap.NewsFlash.Areas)

	assert.True(t, s.SetNotice(models.EarlyWarningNotice{Instructions: "newer history", Timestamp: epoch.UnixMilli() + 20}, NoticeFromHistory))
	assert.Equal(t, "newer history", s.Snapshot().NewsFlash.Instructions)
}

func TestNotice_ExpiresAfterTTL(t *testing.T) {
	s, clock := newTestStore(t)
	s.SetNotice(models.EarlyWarningNotice{Instructions: "x", Timestamp: epoch.UnixMilli(), Areas: []string{"A"}}, NoticeFromLive)

	clock.Advance(600 * time.Second)
	assert.NotNil(t, s.Snapshot().NewsFlash)

	clock.Advance(time.Millisecond)
	assert.Nil(t, s.Snapshot().NewsFlash)

	ev := s.Sweep()
	assert.True(t, ev.NoticeChanged)
}

func TestClearNotice(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetNotice(models.EarlyWarningNotice{Timestamp: epoch.UnixMilli()}, NoticeFromLive)

	s.ClearNotice()
	assert.Nil(t, s.Snapshot().NewsFlash)
}

func TestInjected_MergedAndExpired(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("A"))
	clock.Advance(5 * time.Second)
	s.Upsert("A", 20)
	s.Upsert("Injected", 10)

	snap := s.Snapshot()
	require.Len(t, snap.Alerts, 2)
	for _, a := range snap.Alerts {
		if a.Area == "A" {
			assert.Equal(t, 20, a.MigunTime, "injected record shadows the real one")
		}
	}

	clock.Advance(41 * time.Second)
	ev := s.Sweep()
	assert.ElementsMatch(t, []string{"Injected"}, ev.Removed)

	clock.Advance(10 * time.Second)
	ev = s.ApplyLive(live("A"))
	assert.ElementsMatch(t, []string{"A"}, ev.Removed)

	snap = s.Snapshot()
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, 60, snap.Alerts[0].MigunTime)
}

func TestClear_RemovesInjectedOnly(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyLive(live("A"))
	s.Upsert("B", 30)
	s.Clear()

	snap := s.Snapshot()
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, "A", snap.Alerts[0].Area)
}

func TestSnapshot_ServerTimeMonotonic(t *testing.T) {
	s, clock := newTestStore(t)

	first := s.Snapshot().ServerTime
	clock.Advance(time.Millisecond)
	second := s.Snapshot().ServerTime

	assert.Equal(t, epoch.UnixMilli(), first)
	assert.Greater(t, second, first)
}

func TestSnapshot_SortedByStart(t *testing.T) {
	s, clock := newTestStore(t)

	s.ApplyLive(live("B"))
	clock.Advance(time.Second)
	s.ApplyLive(live("B", "A"))

	snap := s.Snapshot()
	require.Len(t, snap.Alerts, 2)
	assert.Equal(t, "B", snap.Alerts[0].Area)
	assert.Equal(t, "A", snap.Alerts[1].Area)
}

func TestObserverAndBroadcast(t *testing.T) {
	obs := &recordingObserver{}
	b := stream.NewBroadcaster()
	s, clock := newTestStore(t, WithObserver(obs), WithBroadcaster(b))
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	s.ApplyLive(live("A"))
	ev := <-ch
	assert.Equal(t, []string{"A"}, ev.Added)

	clock.Advance(2 * time.Minute)
	s.ApplyLive(live())
	ev = <-ch
	assert.Equal(t, []string{"A"}, ev.Removed)

	assert.Equal(t, []string{"A"}, obs.started)
	assert.Equal(t, []string{"A"}, obs.ended)
}

func TestConcurrentReadWrite(t *testing.T) {
	s, _ := newTestStore(t)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.ApplyLive(live("A", "B"))
				s.Upsert("C", 30)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Snapshot()
				if len(snap.Alerts) > 3 {
					t.Errorf("unexpected alert count %d", len(snap.Alerts))
				}
			}
		}()
	}
	wg.Wait()
}

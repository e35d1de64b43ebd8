package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-shelter-alerts/internal/catalog"
	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/repository"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
	"github.com/mr1hm/go-shelter-alerts/internal/stream"
)

// mockRepo implements repository.EpisodeRepository for testing
type mockRepo struct {
	episodes   []models.Episode
	lastFilter repository.Filter
}

func (m *mockRepo) StartEpisode(ctx context.Context, ep *models.Episode) error {
	m.episodes = append(m.episodes, *ep)
	return nil
}

func (m *mockRepo) EndEpisode(ctx context.Context, area string, source models.EpisodeSource, endedAt time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRepo) ListEpisodes(ctx context.Context, opts repository.Filter) ([]models.Episode, error) {
	m.lastFilter = opts
	results := m.episodes
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

type testEnv struct {
	router      *gin.Engine
	store       *store.Store
	broadcaster *stream.Broadcaster
	clock       *clockwork.FakeClock
}

func setupTestRouter(t *testing.T, repo repository.EpisodeRepository, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := catalog.New([]models.Area{
		{Name: "שדרות", MigunTime: 15},
		{Name: "תל אביב - מרכז העיר", MigunTime: 90},
	})
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1_760_000_000_000))
	b := stream.NewBroadcaster()
	st := store.New(cat, store.WithClock(clk), store.WithBroadcaster(b))
	t.Cleanup(func() {
		st.Close()
		b.Close()
	})

	router := gin.New()
	handler := NewHandler(st, cat, repo, b, nil, opts)
	handler.RegisterRoutes(router)

	return &testEnv{router: router, store: st, broadcaster: b, clock: clk}
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	e.router.ServeHTTP(w, req)
	return w
}

func TestGetAlerts_Snapshot(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	env.store.Upsert("שדרות", 15)

	w := env.get("/api/alerts")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if snap.ServerTime != 1_760_000_000_000 {
		t.Errorf("expected server_time from store clock, got %d", snap.ServerTime)
	}
	if len(snap.Alerts) != 1 || snap.Alerts[0].Area != "שדרות" {
		t.Errorf("expected one alert for שדרות, got %+v", snap.Alerts)
	}
	if snap.NewsFlash != nil {
		t.Errorf("expected no notice, got %+v", snap.NewsFlash)
	}
}

func TestGetAlerts_EmptyListNotNull(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/api/alerts")

	if !strings.Contains(w.Body.String(), `"alerts":[]`) {
		t.Errorf("expected empty alerts array, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"newsFlash":null`) {
		t.Errorf("expected null newsFlash, got %s", w.Body.String())
	}
}

func TestGetAreas(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/api/areas")

	var areas []models.Area
	if err := json.Unmarshal(w.Body.Bytes(), &areas); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(areas) != 2 {
		t.Fatalf("expected 2 areas, got %d", len(areas))
	}
	if areas[0].Name != "שדרות" || areas[0].MigunTime != 15 {
		t.Errorf("unexpected first area: %+v", areas[0])
	}
}

func TestCreateTestAlert_RequiresArea(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/api/test-alert")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestCreateTestAlert_ForbiddenInProduction(t *testing.T) {
	env := setupTestRouter(t, nil, Options{Production: true})

	w := env.get("/api/test-alert?area=A")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	if len(env.store.Snapshot().Alerts) != 0 {
		t.Error("forbidden request must not inject")
	}

	w = env.get("/api/test-alert?area=A&test=true")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 with test=true, got %d", w.Code)
	}
}

func TestCreateTestAlert_MigunTimeResolution(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"catalog wins over query", "area=" + url.QueryEscape("שדרות") + "&migun_time=60", 15},
		{"query for unknown area", "area=Unknown&migun_time=45", 45},
		{"default for unknown area", "area=Unknown", 90},
		{"invalid query falls back", "area=Unknown&migun_time=abc", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, nil, Options{})

			w := env.get("/api/test-alert?" + tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}

			var resp struct {
				Success bool               `json:"success"`
				Alert   models.AlertRecord `json:"alert"`
			}
			json.Unmarshal(w.Body.Bytes(), &resp)

			if !resp.Success {
				t.Error("expected success")
			}
			if resp.Alert.MigunTime != tt.want {
				t.Errorf("expected migun_time %d, got %d", tt.want, resp.Alert.MigunTime)
			}
		})
	}
}

func TestCreateTestAlert_MultipleAreas(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/api/test-alert?areas=A,B,,A")

	var resp struct {
		Alerts []models.AlertRecord `json:"alerts"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Alerts) != 2 {
		t.Errorf("expected 2 distinct alerts, got %d", len(resp.Alerts))
	}
	if got := len(env.store.Snapshot().Alerts); got != 2 {
		t.Errorf("expected 2 alerts in snapshot, got %d", got)
	}
}

func TestClearTestAlerts(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	env.get("/api/test-alert?area=A")

	w := env.get("/api/clear-test-alerts")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if got := len(env.store.Snapshot().Alerts); got != 0 {
		t.Errorf("expected no alerts after clear, got %d", got)
	}
}

func TestGetEpisodes_Disabled(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/api/episodes")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestGetEpisodes_LimitFilter(t *testing.T) {
	now := time.Now()
	repo := &mockRepo{
		episodes: []models.Episode{
			{ID: "e1", Area: "A", StartedAt: now},
			{ID: "e2", Area: "B", StartedAt: now},
			{ID: "e3", Area: "C", StartedAt: now},
		},
	}
	env := setupTestRouter(t, repo, Options{})

	w := env.get("/api/episodes?limit=2&area=A&open=true")

	var resp struct {
		Episodes []models.Episode `json:"episodes"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Episodes) != 2 {
		t.Errorf("expected 2 episodes, got %d", len(resp.Episodes))
	}
	if repo.lastFilter.Area != "A" || !repo.lastFilter.OpenOnly {
		t.Errorf("filter not forwarded: %+v", repo.lastFilter)
	}
}

func TestGetEpisodes_InvalidLimitUsesDefault(t *testing.T) {
	repo := &mockRepo{}
	env := setupTestRouter(t, repo, Options{})

	env.get("/api/episodes?limit=9999")

	if repo.lastFilter.Limit != 50 {
		t.Errorf("expected default limit 50, got %d", repo.lastFilter.Limit)
	}
}

func TestGetCitiesGeo(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	if w := env.get("/api/cities-geo"); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 when unset, got %d", w.Code)
	}

	path := filepath.Join(t.TempDir(), "cities.json")
	if err := os.WriteFile(path, []byte(`{"A":{"lat":31.5,"lng":34.6}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	env = setupTestRouter(t, nil, Options{CitiesGeoPath: path})

	w := env.get("/api/cities-geo")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"lat":31.5`) {
		t.Errorf("expected file contents, got %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})

	w := env.get("/health")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestStreamAlerts_PushesSnapshots(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/alerts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap models.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}
	if len(snap.Alerts) != 0 {
		t.Errorf("expected empty initial snapshot, got %+v", snap.Alerts)
	}

	env.store.Upsert("A", 60)

	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("failed to read update: %v", err)
	}
	if len(snap.Alerts) != 1 || snap.Alerts[0].Area != "A" {
		t.Errorf("expected pushed alert for A, got %+v", snap.Alerts)
	}
}

func TestStreamAlerts_ClosedOnShutdown(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/alerts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap models.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}

	env.broadcaster.Close()

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	env := setupTestRouter(t, nil, Options{})
	router := gin.New()
	router.Use(RateLimitMiddleware(2))
	NewHandler(env.store, catalog.New(nil), nil, env.broadcaster, nil, Options{}).RegisterRoutes(router)

	get := func(remote string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/alerts", nil)
		req.RemoteAddr = remote
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := get("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, code)
		}
	}
	if code := get("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected flooding client to get 429, got %d", code)
	}
	if code := get("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("expected second client to get 200, got %d", code)
	}
}

func TestStreamAlerts_ResendsExpiredSnapshot(t *testing.T) {
	env := setupTestRouter(t, nil, Options{StreamRefresh: 20 * time.Millisecond})
	env.store.Upsert("A", 60)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/alerts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap models.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}
	if len(snap.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(snap.Alerts))
	}

	// Past migun_time plus grace; nothing publishes a store event
	env.clock.Advance(91 * time.Second)

	for i := 0; i < 50; i++ {
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("failed to read refresh: %v", err)
		}
		if len(snap.Alerts) == 0 {
			return
		}
	}
	t.Errorf("expired alert still pushed: %+v", snap.Alerts)
}

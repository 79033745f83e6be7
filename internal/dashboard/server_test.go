package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"weather-monitor/internal/service"
	"weather-monitor/internal/weather"
)

type fakeSource struct {
	mu    sync.Mutex
	state service.State
	cfg   weather.AlertConfig
}

func (f *fakeSource) State() *service.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state
	st.AlertConfig = f.cfg
	return &st
}

func (f *fakeSource) AlertConfig() weather.AlertConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeSource) SetAlertConfig(cfg weather.AlertConfig) error {
	if cfg.ConsecutiveUpdates < 1 {
		return errors.New("consecutive updates must be at least 1")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

func newTestApp(st service.State) (*fiber.App, *fakeSource) {
	src := &fakeSource{state: st, cfg: weather.AlertConfig{HighTemp: 35, LowTemp: 10, ConsecutiveUpdates: 2}}
	return New(src, Options{}, zerolog.Nop()), src
}

func populatedState() service.State {
	at := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	alerts := make([]weather.AlertEvent, 0, 7)
	for i := 0; i < 7; i++ {
		alerts = append(alerts, weather.AlertEvent{ID: string(rune('a' + i)), City: "Delhi", Temp: 42.3, Severity: weather.SeverityHigh, Message: "High temperature alert for Delhi: 42.3°C", RaisedAt: at})
	}
	return service.State{
		Phase: service.PhaseSuccess,
		RecentSnapshots: []weather.Snapshot{
			{City: "Delhi", Condition: weather.ConditionClear, Temp: 42.3, FeelsLike: 44, Humidity: 20, WindSpeed: 3.1, ObservedAt: at},
			{City: "Mumbai", Condition: weather.ConditionRain, Temp: 29.5, FeelsLike: 33, Humidity: 80, WindSpeed: 5, ObservedAt: at},
		},
		History: []weather.DailySummary{
			{Date: "2024-05-19", AvgTemp: 33, MaxTemp: 41, MinTemp: 27, DominantCondition: weather.ConditionClear},
			{Date: "2024-05-20", AvgTemp: 35.9, MaxTemp: 42.3, MinTemp: 29.5, DominantCondition: weather.ConditionClear},
		},
		Alerts:    alerts,
		UpdatedAt: at,
	}
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(service.State{})
	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStateEndpoint(t *testing.T) {
	app, _ := newTestApp(populatedState())
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"phase", "recentSnapshots", "history", "alerts", "lastError", "alertConfig", "updatedAt"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing key %q in %s", key, body)
		}
	}
}

func TestAlertsEndpoint(t *testing.T) {
	app, _ := newTestApp(populatedState())

	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	var alerts []weather.AlertEvent
	if err := json.Unmarshal(body, &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 5 || alerts[0].ID != "g" {
		t.Fatalf("default alerts = %+v", alerts)
	}

	_, body = do(t, app, httptest.NewRequest(http.MethodGet, "/api/alerts?limit=2", nil))
	alerts = nil
	if err := json.Unmarshal(body, &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("limited alerts = %d", len(alerts))
	}

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/alerts?limit=0", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d", resp.StatusCode)
	}
}

func TestPutConfig(t *testing.T) {
	app, src := newTestApp(service.State{})

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"highTemp":40,"lowTemp":0}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := do(t, app, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	want := weather.AlertConfig{HighTemp: 40, LowTemp: 0, ConsecutiveUpdates: 2}
	if src.AlertConfig() != want {
		t.Fatalf("config = %+v", src.AlertConfig())
	}

	cases := []string{
		`{"highTemp":40}`,
		`{"highTemp":40,"lowTemp":0,"consecutiveUpdates":0}`,
		`not json`,
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(c))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := do(t, app, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", c, resp.StatusCode)
		}
	}
	if src.AlertConfig() != want {
		t.Fatalf("config changed by rejected update: %+v", src.AlertConfig())
	}
}

func TestGetConfig(t *testing.T) {
	app, _ := newTestApp(service.State{})
	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	var cfg weather.AlertConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.HighTemp != 35 || cfg.ConsecutiveUpdates != 2 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestConfigFormKeepsConsecutiveUpdates(t *testing.T) {
	app, src := newTestApp(service.State{})
	form := url.Values{"highTemp": {"38.5"}, "lowTemp": {"-4"}}
	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ := do(t, app, req)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := weather.AlertConfig{HighTemp: 38.5, LowTemp: -4, ConsecutiveUpdates: 2}
	if src.AlertConfig() != want {
		t.Fatalf("config = %+v", src.AlertConfig())
	}

	bad := url.Values{"highTemp": {"hot"}, "lowTemp": {"1"}}
	req = httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(bad.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ = do(t, app, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad form status = %d", resp.StatusCode)
	}
}

func TestConfigFormRejectsNonFinite(t *testing.T) {
	app, src := newTestApp(service.State{})
	before := src.AlertConfig()
	for _, v := range []string{"NaN", "Inf", "-Inf", "+inf"} {
		form := url.Values{"highTemp": {v}, "lowTemp": {"5"}}
		req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, _ := do(t, app, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("highTemp=%s: status = %d", v, resp.StatusCode)
		}
	}
	if src.AlertConfig() != before {
		t.Fatalf("config changed: %+v", src.AlertConfig())
	}
}

func TestChartEndpoint(t *testing.T) {
	app, _ := newTestApp(populatedState())
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/chart.png", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatal("expected png body")
	}

	empty, _ := newTestApp(service.State{})
	resp, _ = do(t, empty, httptest.NewRequest(http.MethodGet, "/chart.png", nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty history status = %d", resp.StatusCode)
	}
}

func TestPageRendersState(t *testing.T) {
	st := populatedState()
	st.LastError = service.FetchFailedMessage
	app, _ := newTestApp(st)
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := string(body)
	for _, want := range []string{"Delhi", "42.3°C", "2024-05-19", "/chart.png", "Failed to fetch weather data", "High temperature alert for Delhi"} {
		if !strings.Contains(page, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	app, _ := newTestApp(service.State{})
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"error":true`) {
		t.Fatalf("body = %s", body)
	}
}

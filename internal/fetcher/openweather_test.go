package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"weather-monitor/internal/weather"
)

var temps = map[string]float64{"Delhi": 42.3, "Mumbai": 31.0, "Chennai": 33.5}

func okHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "key" || r.URL.Query().Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		city := strings.TrimSuffix(r.URL.Query().Get("q"), ",IN")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    city,
			"dt":      1_716_200_000,
			"main":    map[string]any{"temp": temps[city], "feels_like": temps[city] + 1, "humidity": 40},
			"wind":    map[string]any{"speed": 3.2},
			"weather": []map[string]string{{"main": "Clear"}},
		})
	}
}

func newClient(url string) *OpenWeather {
	return NewOpenWeather(OpenWeatherOptions{
		BaseURL: url,
		APIKey:  "key",
		Country: "IN",
		Timeout: time.Second,
	}, noopLogger())
}

func TestFetchBatchSuccessKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(okHandler(t))
	defer srv.Close()

	cities := []string{"Chennai", "Delhi", "Mumbai"}
	batch, err := newClient(srv.URL).FetchBatch(context.Background(), cities)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch) != len(cities) {
		t.Fatalf("len = %d", len(batch))
	}
	for i, city := range cities {
		if batch[i].City != city || batch[i].Temp != temps[city] {
			t.Fatalf("slot %d = %+v, want %s", i, batch[i], city)
		}
	}
	if batch[1].Condition != weather.ConditionClear || batch[1].Humidity != 40 || batch[1].WindSpeed != 3.2 {
		t.Fatalf("fields not decoded: %+v", batch[1])
	}
	if batch[1].ObservedAt.Unix() != 1_716_200_000 {
		t.Fatalf("observedAt = %v", batch[1].ObservedAt)
	}
}

func TestFetchBatchAllOrNothing(t *testing.T) {
	ok := okHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get("q"), "Mumbai") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"cod":500,"message":"upstream down"}`))
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	batch, err := newClient(srv.URL).FetchBatch(context.Background(), []string{"Delhi", "Mumbai", "Chennai"})
	if batch != nil {
		t.Fatalf("partial batch returned: %v", batch)
	}
	var perr *weather.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.City != "Mumbai" || perr.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected provider error %+v", perr)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("error should carry API message: %v", err)
	}
}

func TestFetchCityAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchCity(context.Background(), "Delhi")
	var perr *weather.ProviderError
	if !errors.As(err, &perr) || perr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 provider error, got %v", err)
	}
}

func TestFetchCityMalformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"name":"Delhi","dt":1716200000,"main":{"temp":30},"weather":[]}`,
		`{"name":"Delhi","main":{"temp":30},"weather":[{"main":"Clear"}]}`,
		`{"name":"Delhi","dt":1716200000,"main":{},"weather":[{"main":"Clear"}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newClient(srv.URL).FetchCity(context.Background(), "Delhi")
		srv.Close()
		if !errors.Is(err, errMalformed) {
			t.Fatalf("body %s: expected malformed payload error, got %v", body, err)
		}
	}
}

func TestFetchCityFallsBackToRequestedName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"dt":1716200000,"main":{"temp":30},"weather":[{"main":"RAIN"}]}`))
	}))
	defer srv.Close()

	snap, err := newClient(srv.URL).FetchCity(context.Background(), "Pune")
	if err != nil {
		t.Fatalf("FetchCity: %v", err)
	}
	if snap.City != "Pune" || snap.Condition != weather.ConditionRain {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFetchCityMissingAPIKey(t *testing.T) {
	f := NewOpenWeather(OpenWeatherOptions{BaseURL: "http://127.0.0.1:1"}, noopLogger())
	_, err := f.FetchCity(context.Background(), "Delhi")
	if !errors.Is(err, errMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestFetchCityTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewOpenWeather(OpenWeatherOptions{BaseURL: srv.URL, APIKey: "key", Timeout: 50 * time.Millisecond}, noopLogger())
	start := time.Now()
	_, err := f.FetchCity(context.Background(), "Delhi")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewOpenWeather(OpenWeatherOptions{
		BaseURL: srv.URL,
		APIKey:  "key",
		Timeout: time.Second,
		Breaker: BreakerOptions{MaxFailures: 2, Timeout: time.Minute},
	}, noopLogger())

	for i := 0; i < 2; i++ {
		if _, err := f.FetchCity(context.Background(), "Delhi"); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := f.FetchCity(context.Background(), "Delhi")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("open breaker should short-circuit, server saw %d requests", hits.Load())
	}
}

func TestBatchRecoversAfterTransientCityFailure(t *testing.T) {
	cities := []string{"Delhi", "Mumbai", "Chennai", "Bangalore", "Kolkata", "Hyderabad"}
	var delhiFailed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		city := strings.TrimSuffix(r.URL.Query().Get("q"), ",IN")
		if city == "Delhi" && delhiFailed.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if city != "Delhi" {
			select {
			case <-time.After(30 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    city,
			"dt":      1_716_200_000,
			"main":    map[string]any{"temp": 30.0},
			"weather": []map[string]string{{"main": "Clear"}},
		})
	}))
	defer srv.Close()

	f := NewOpenWeather(OpenWeatherOptions{
		BaseURL: srv.URL,
		APIKey:  "key",
		Country: "IN",
		Timeout: time.Second,
		Breaker: BreakerOptions{MaxRequests: 1, Timeout: 50 * time.Millisecond, MaxFailures: 1},
	}, noopLogger())

	if _, err := f.FetchBatch(context.Background(), cities); err == nil {
		t.Fatal("expected first batch to fail")
	}
	if st := f.breakerFor("Delhi").State(); st != gobreaker.StateOpen {
		t.Fatalf("Delhi breaker = %s, want open", st)
	}
	for _, city := range cities[1:] {
		if st := f.breakerFor(city).State(); st != gobreaker.StateClosed {
			t.Fatalf("%s breaker = %s; cancelled sibling requests must not count as failures", city, st)
		}
	}

	time.Sleep(100 * time.Millisecond)

	for cycle := 0; cycle < 3; cycle++ {
		batch, err := f.FetchBatch(context.Background(), cities)
		if err != nil {
			t.Fatalf("cycle %d after recovery: %v", cycle, err)
		}
		if len(batch) != len(cities) {
			t.Fatalf("cycle %d: batch size %d", cycle, len(batch))
		}
	}
	if st := f.breakerFor("Delhi").State(); st != gobreaker.StateClosed {
		t.Fatalf("Delhi breaker = %s after recovery", st)
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

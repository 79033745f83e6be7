package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"weather-monitor/internal/weather"
)

var (
	errMissingAPIKey = errors.New("openweather api key is not configured")
	errMalformed     = errors.New("malformed payload")
)

// BreakerOptions tune the circuit breaker guarding the provider.
type BreakerOptions struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

// OpenWeatherOptions parameterise the OpenWeatherMap client.
type OpenWeatherOptions struct {
	BaseURL   string
	APIKey    string
	Units     string
	Country   string
	UserAgent string
	Timeout   time.Duration
	Breaker   BreakerOptions
}

// OpenWeather fetches current conditions from OpenWeatherMap.
type OpenWeather struct {
	opts   OpenWeatherOptions
	client *http.Client
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewOpenWeather constructs the provider client.
func NewOpenWeather(opts OpenWeatherOptions, logger zerolog.Logger) *OpenWeather {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	if opts.Units == "" {
		opts.Units = "metric"
	}
	if opts.Breaker.MaxFailures == 0 {
		opts.Breaker.MaxFailures = 5
	}

	return &OpenWeather{
		opts:     opts,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "fetcher").Logger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breakerFor returns the city's breaker, creating it on first use. Each city
// trips independently so one failing city cannot starve the others of
// half-open probes.
func (o *OpenWeather) breakerFor(city string) *gobreaker.CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cb, ok := o.breakers[city]; ok {
		return cb
	}
	maxFailures := o.opts.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather:" + city,
		MaxRequests: o.opts.Breaker.MaxRequests,
		Interval:    o.opts.Breaker.Interval,
		Timeout:     o.opts.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A request abandoned because a sibling failed says nothing about this city.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	o.breakers[city] = cb
	return cb
}

// FetchBatch fetches every city concurrently. The first failure cancels the
// remaining requests and fails the batch.
func (o *OpenWeather) FetchBatch(ctx context.Context, cities []string) ([]weather.Snapshot, error) {
	if len(cities) == 0 {
		return nil, &weather.ProviderError{Err: errors.New("no cities requested")}
	}

	out := make([]weather.Snapshot, len(cities))
	g, gctx := errgroup.WithContext(ctx)
	for i, city := range cities {
		i, city := i, city
		g.Go(func() error {
			snap, err := o.FetchCity(gctx, city)
			if err != nil {
				return err
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.logger.Debug().Int("cities", len(out)).Msg("batch fetched")
	return out, nil
}

// FetchCity retrieves the current conditions of one city.
func (o *OpenWeather) FetchCity(ctx context.Context, city string) (weather.Snapshot, error) {
	if o.opts.APIKey == "" {
		return weather.Snapshot{}, &weather.ProviderError{City: city, Err: errMissingAPIKey}
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	result, err := o.breakerFor(city).Execute(func() (interface{}, error) {
		return o.get(ctx, city)
	})
	if err != nil {
		perr := &weather.ProviderError{City: city, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			perr.Status = se.code
		}
		return weather.Snapshot{}, perr
	}

	payload, ok := result.([]byte)
	if !ok {
		return weather.Snapshot{}, &weather.ProviderError{City: city, Err: fmt.Errorf("unexpected breaker result %T", result)}
	}

	snap, err := decodeCurrent(payload, city)
	if err != nil {
		return weather.Snapshot{}, &weather.ProviderError{City: city, Err: err}
	}
	return snap, nil
}

func (o *OpenWeather) get(ctx context.Context, city string) ([]byte, error) {
	q := city
	if o.opts.Country != "" {
		q = city + "," + o.opts.Country
	}
	values := url.Values{}
	values.Set("q", q)
	values.Set("appid", o.opts.APIKey)
	values.Set("units", o.opts.Units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.BaseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

type currentResponse struct {
	Name string `json:"name"`
	Dt   *int64 `json:"dt"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func decodeCurrent(payload []byte, requested string) (weather.Snapshot, error) {
	var res currentResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return weather.Snapshot{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if res.Main.Temp == nil || res.Dt == nil || len(res.Weather) == 0 {
		return weather.Snapshot{}, fmt.Errorf("%w: missing temp, dt or weather", errMalformed)
	}

	city := res.Name
	if strings.TrimSpace(city) == "" {
		city = requested
	}
	return weather.NewSnapshot(city, res.Weather[0].Main, *res.Main.Temp, res.Main.FeelsLike,
		res.Main.Humidity, res.Wind.Speed, time.Unix(*res.Dt, 0).UTC())
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("openweather api error (%d): %s", e.code, e.message)
	}
	return fmt.Sprintf("openweather api error (%d)", e.code)
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return &statusError{code: status, message: apiErr.Message}
	}
	return &statusError{code: status, message: strings.TrimSpace(string(payload))}
}

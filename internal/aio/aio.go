// Package aio talks to the Adafruit IO integrations used by the device:
// the weather forecast and the network time service.
package aio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gcalpaper/internal/fault"
	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
)

// DefaultBaseURL is the Adafruit IO API host.
const DefaultBaseURL = "https://io.adafruit.com"

// ForecastSlot is the forecast entry shown on the display: two hours out.
const ForecastSlot = "forecast_hours_2"

// Client is an Adafruit IO client bound to one account.
type Client struct {
	baseURL  string
	username string
	key      string
	http     *http.Client
}

// NewClient returns a Client. An empty baseURL selects DefaultBaseURL and
// a nil httpClient a client with a 15s timeout.
func NewClient(baseURL, username, key string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, username: username, key: key, http: httpClient}
}

// getJSON performs an authenticated GET and decodes the JSON body into v.
// Every failure is a transient network fault.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, v any) error {
	u := c.baseURL + "/api/v2/" + url.PathEscape(c.username) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fault.Network(op, err)
	}
	req.Header.Set("X-AIO-Key", c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Network(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fault.Network(op, fmt.Errorf("status %s: %s", resp.Status, snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fault.Network(op, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// WeatherSource reads a stored Adafruit IO weather location.
type WeatherSource struct {
	client     *Client
	locationID int
}

func NewWeatherSource(c *Client, locationID int) *WeatherSource {
	return &WeatherSource{client: c, locationID: locationID}
}

type forecastEntry struct {
	Icon        string   `json:"icon"`
	Temperature *float64 `json:"temperature"`
}

// Forecast returns the icon key and temperature (°F) of ForecastSlot.
func (w *WeatherSource) Forecast(ctx context.Context) (model.Forecast, error) {
	var body map[string]json.RawMessage
	path := "/integrations/weather/" + strconv.Itoa(w.locationID)
	if err := w.client.getJSON(ctx, "weather", path, nil, &body); err != nil {
		return model.Forecast{}, err
	}

	raw, ok := body[ForecastSlot]
	if !ok {
		return model.Forecast{}, fault.Network("weather", fmt.Errorf("response has no %s", ForecastSlot))
	}
	var entry forecastEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.Forecast{}, fault.Network("weather", fmt.Errorf("decode %s: %w", ForecastSlot, err))
	}
	if entry.Icon == "" || entry.Temperature == nil {
		return model.Forecast{}, fault.Network("weather", errors.New("forecast is missing icon or temperature"))
	}

	f := model.Forecast{IconKey: entry.Icon, TemperatureF: *entry.Temperature}
	log.Debug("forecast received", "icon", f.IconKey, "temperature_f", f.TemperatureF)
	return f, nil
}

// TimeSource asks Adafruit IO for the wall clock in a timezone, like the
// device's network time sync.
type TimeSource struct {
	client *Client
	loc    *time.Location
}

func NewTimeSource(c *Client, loc *time.Location) *TimeSource {
	return &TimeSource{client: c, loc: loc}
}

type timeStruct struct {
	Year  int `json:"year"`
	Month int `json:"mon"`
	Day   int `json:"mday"`
	Hour  int `json:"hour"`
	Min   int `json:"min"`
	Sec   int `json:"sec"`
}

// Now returns the service's local time for the configured zone.
func (t *TimeSource) Now(ctx context.Context) (time.Time, error) {
	var ts timeStruct
	q := url.Values{"tz": {t.loc.String()}}
	if err := t.client.getJSON(ctx, "time sync", "/integrations/time/struct", q, &ts); err != nil {
		return time.Time{}, err
	}
	if ts.Year == 0 || ts.Month < 1 || ts.Month > 12 || ts.Day < 1 {
		return time.Time{}, fault.Network("time sync", fmt.Errorf("implausible time %+v", ts))
	}
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Min, ts.Sec, 0, t.loc), nil
}

// SystemClock reads the host clock in a fixed zone. Used when the host
// already keeps time (NTP, RTC).
type SystemClock struct {
	Loc *time.Location
}

func (s SystemClock) Now(_ context.Context) (time.Time, error) {
	return time.Now().In(s.Loc), nil
}

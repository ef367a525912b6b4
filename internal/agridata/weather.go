package agridata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WeatherClient calls an open-meteo style forecast endpoint.
type WeatherClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewWeatherClient creates a weather client for the given endpoint.
func NewWeatherClient(endpoint string, timeout time.Duration, logger *zap.Logger) *WeatherClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	// Forecast appends /forecast itself; accept endpoints configured with
	// the path already present.
	endpoint = strings.TrimSuffix(strings.TrimSuffix(endpoint, "/"), "/forecast")
	return &WeatherClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type weatherResponse struct {
	Location string `json:"location"`
	Daily    []struct {
		Date          string  `json:"date"`
		TemperatureMin float64 `json:"temperature_min"`
		TemperatureMax float64 `json:"temperature_max"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed"`
	} `json:"daily"`
}

// Forecast fetches up to days of forecast for a location.
func (c *WeatherClient) Forecast(ctx context.Context, location string, days int) (*WeatherReport, error) {
	if days <= 0 {
		days = 7
	}
	u := fmt.Sprintf("%s/forecast?location=%s&days=%d", c.endpoint, url.QueryEscape(location), days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Service: "weather", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UnavailableError{
			Service: "weather",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var wr weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}

	report := &WeatherReport{Location: wr.Location}
	if report.Location == "" {
		report.Location = location
	}
	for _, d := range wr.Daily {
		report.Days = append(report.Days, WeatherDay{
			Date:     d.Date,
			TempMin:  d.TemperatureMin,
			TempMax:  d.TemperatureMax,
			PrecipMM: d.Precipitation,
			WindKPH:  d.WindSpeed,
		})
	}
	c.logger.Debug("weather forecast fetched",
		zap.String("location", location), zap.Int("days", len(report.Days)))
	return report, nil
}

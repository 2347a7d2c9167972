// Package weather resolves a short Spanish forecast line for the 24 hour
// reminder. Open-Meteo is keyless, so failures cost nothing but the line:
// callers treat an empty string as "no forecast" and send anyway.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tripwatch/internal/airport"
)

const (
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout = 5 * time.Second
	maxAttempts    = 2
	dateLayout     = "2006-01-02"
)

// Provider resolves a one-line forecast for an airport around an instant.
// An empty string means no forecast is available.
type Provider interface {
	Forecast(ctx context.Context, iata string, at time.Time) string
}

// Config configures the Open-Meteo client. Zero values get production
// defaults.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        zerolog.Logger
}

// OpenMeteo fetches daily forecasts from the Open-Meteo public API.
type OpenMeteo struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewOpenMeteo builds a client, filling config defaults.
func NewOpenMeteo(cfg Config) *OpenMeteo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenMeteo{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		log:     cfg.Log.With().Str("component", "weather").Logger(),
	}
}

type dailyResponse struct {
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// Forecast returns a line like "Parcialmente nublado, 8°C a 17°C" for the
// airport-local day containing at, or "" when the airport is unknown, the
// date is out of range or the API is unreachable.
func (o *OpenMeteo) Forecast(ctx context.Context, iata string, at time.Time) string {
	ap, ok := airport.Lookup(iata)
	if !ok {
		return ""
	}
	day := airport.UTCToLocal(at, iata).Format(dateLayout)

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", ap.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", ap.Lon))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")
	q.Set("start_date", day)
	q.Set("end_date", day)
	endpoint := o.baseURL + "?" + q.Encode()

	var dr dailyResponse
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = o.doRequest(ctx, endpoint, &dr)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		o.log.Warn().Err(lastErr).Str("iata", iata).Msg("forecast unavailable")
		return ""
	}

	for i, d := range dr.Daily.Time {
		if d != day || i >= len(dr.Daily.WeatherCode) || i >= len(dr.Daily.TempMax) || i >= len(dr.Daily.TempMin) {
			continue
		}
		return formatLine(dr.Daily.WeatherCode[i], dr.Daily.TempMin[i], dr.Daily.TempMax[i])
	}
	o.log.Debug().Str("iata", iata).Str("day", day).Msg("no forecast for requested day")
	return ""
}

func (o *OpenMeteo) doRequest(ctx context.Context, endpoint string, out *dailyResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forecast status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatLine(code int, minC, maxC float64) string {
	desc := describe(code)
	temps := fmt.Sprintf("%.0f°C a %.0f°C", minC, maxC)
	if desc == "" {
		return temps
	}
	return desc + ", " + temps
}

// describe maps WMO interpretation codes to the product's Spanish copy.
func describe(code int) string {
	switch code {
	case 0:
		return "Despejado"
	case 1:
		return "Mayormente despejado"
	case 2:
		return "Parcialmente nublado"
	case 3:
		return "Nublado"
	case 45, 48:
		return "Niebla"
	case 51, 53, 55, 56, 57:
		return "Llovizna"
	case 61, 63, 65, 66, 67:
		return "Lluvia"
	case 71, 73, 75, 77:
		return "Nieve"
	case 80, 81, 82:
		return "Chubascos"
	case 85, 86:
		return "Chubascos de nieve"
	case 95, 96, 99:
		return "Tormenta"
	default:
		return ""
	}
}

// Static always answers with the same line. Handy in tests and dry runs.
type Static struct {
	Line string
}

func (s Static) Forecast(context.Context, string, time.Time) string {
	return s.Line
}

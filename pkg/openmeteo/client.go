// Package openmeteo is a small client for the Open-Meteo forecast and
// historical archive APIs.
package openmeteo

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

const (
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	// HourlyVariables is the hourly series requested for race-day weather.
	HourlyVariables = "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation_probability"
	// DailyVariables is the daily series requested for wet-race history.
	DailyVariables = "precipitation_sum"

	dateLayout = "2006-01-02"
)

// Client fetches weather for a coordinate.
type Client interface {
	// Archive returns hourly observations for a single past date.
	Archive(ctx context.Context, lat, lon float64, date time.Time) (*Response, error)
	// Forecast returns hourly forecasts for the next days days.
	Forecast(ctx context.Context, lat, lon float64, days int) (*Response, error)
	// DailyArchive returns daily precipitation totals for a single past date.
	DailyArchive(ctx context.Context, lat, lon float64, date time.Time) (*Response, error)
}

// Response is the subset of the Open-Meteo payload the ETL reads. Series
// entries are nil where the API returned null.
type Response struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    *Hourly `json:"hourly,omitempty"`
	Daily     *Daily  `json:"daily,omitempty"`
}

// Hourly holds the hourly series.
type Hourly struct {
	Time                     []string   `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
	WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
}

// Daily holds the daily series.
type Daily struct {
	Time             []string   `json:"time"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
}

// Empty reports whether the payload carries nothing at all.
func (r *Response) Empty() bool {
	return r == nil || (r.Latitude == 0 && r.Longitude == 0 && r.Timezone == "" && r.Hourly == nil && r.Daily == nil)
}

// Option configures the client.
type Option func(*httpClient)

// WithForecastURL overrides the forecast endpoint.
func WithForecastURL(u string) Option {
	return func(c *httpClient) {
		c.forecastURL = u
	}
}

// WithArchiveURL overrides the archive endpoint.
func WithArchiveURL(u string) Option {
	return func(c *httpClient) {
		c.archiveURL = u
	}
}

type httpClient struct {
	f           fetcher.Fetcher
	forecastURL string
	archiveURL  string
}

// NewClient creates an Open-Meteo client that downloads through f.
func NewClient(f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{
		f:           f,
		forecastURL: defaultForecastURL,
		archiveURL:  defaultArchiveURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func coords(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", "auto")
	return q
}

func (c *httpClient) Archive(ctx context.Context, lat, lon float64, date time.Time) (*Response, error) {
	q := coords(lat, lon)
	q.Set("hourly", HourlyVariables)
	q.Set("start_date", date.Format(dateLayout))
	q.Set("end_date", date.Format(dateLayout))
	return c.get(ctx, c.archiveURL, q)
}

func (c *httpClient) Forecast(ctx context.Context, lat, lon float64, days int) (*Response, error) {
	q := coords(lat, lon)
	q.Set("hourly", HourlyVariables)
	q.Set("forecast_days", strconv.Itoa(days))
	return c.get(ctx, c.forecastURL, q)
}

func (c *httpClient) DailyArchive(ctx context.Context, lat, lon float64, date time.Time) (*Response, error) {
	q := coords(lat, lon)
	q.Set("daily", DailyVariables)
	q.Set("start_date", date.Format(dateLayout))
	q.Set("end_date", date.Format(dateLayout))
	return c.get(ctx, c.archiveURL, q)
}

func (c *httpClient) get(ctx context.Context, base string, q url.Values) (*Response, error) {
	resp, err := fetcher.FetchJSON[Response](ctx, c.f, base+"?"+q.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "openmeteo: get %s", base)
	}
	return resp, nil
}

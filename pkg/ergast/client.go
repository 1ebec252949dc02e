// Package ergast reads qualifying results from an Ergast-compatible API
// such as jolpica.
package ergast

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

const defaultBaseURL = "https://api.jolpi.ca/ergast/f1"

// Client reads race weekend results.
type Client interface {
	Qualifying(ctx context.Context, season, round int) ([]QualifyingResult, error)
}

// QualifyingResult is one driver's qualifying classification.
type QualifyingResult struct {
	Number   string `json:"number"`
	Position string `json:"position"`
	Driver   Driver `json:"Driver"`
	Q1       string `json:"Q1"`
	Q2       string `json:"Q2"`
	Q3       string `json:"Q3"`
}

// Driver identifies a driver.
type Driver struct {
	DriverID   string `json:"driverId"`
	Code       string `json:"code"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// Key is the upper-cased three-letter code, falling back to the driver id.
func (d Driver) Key() string {
	if d.Code != "" {
		return strings.ToUpper(d.Code)
	}
	return strings.ToUpper(d.DriverID)
}

type qualifyingResponse struct {
	MRData struct {
		RaceTable struct {
			Races []struct {
				RaceName          string             `json:"raceName"`
				QualifyingResults []QualifyingResult `json:"QualifyingResults"`
			} `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

type httpClient struct {
	f       fetcher.Fetcher
	baseURL string
}

// NewClient creates a client that downloads through f.
func NewClient(f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{f: f, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Qualifying(ctx context.Context, season, round int) ([]QualifyingResult, error) {
	url := fmt.Sprintf("%s/%d/%d/qualifying.json", c.baseURL, season, round)
	resp, err := fetcher.FetchJSON[qualifyingResponse](ctx, c.f, url)
	if err != nil {
		return nil, eris.Wrapf(err, "ergast: qualifying %d/%d", season, round)
	}
	races := resp.MRData.RaceTable.Races
	if len(races) == 0 {
		return nil, nil
	}
	return races[0].QualifyingResults, nil
}

// GridPositions returns qualifying positions keyed by Driver.Key. Any
// failure yields an empty map.
func GridPositions(ctx context.Context, c Client, season, round int) map[string]int {
	out := map[string]int{}
	results, err := c.Qualifying(ctx, season, round)
	if err != nil {
		zap.L().Warn("grid positions unavailable",
			zap.String("component", "ergast"),
			zap.Int("season", season),
			zap.Int("round", round),
			zap.Error(err),
		)
		return out
	}
	for _, q := range results {
		pos, err := strconv.Atoi(strings.TrimSpace(q.Position))
		if err != nil {
			return map[string]int{}
		}
		out[q.Driver.Key()] = pos
	}
	return out
}

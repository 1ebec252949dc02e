// Package openf1 is a read-only client for the OpenF1 live timing API.
package openf1

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/fetcher"
)

const defaultBaseURL = "https://api.openf1.org/v1"

// Client reads session timing data.
type Client interface {
	Meetings(ctx context.Context, year int) ([]Meeting, error)
	Sessions(ctx context.Context, q SessionQuery) ([]Session, error)
	Drivers(ctx context.Context, sessionKey int) ([]Driver, error)
	Laps(ctx context.Context, sessionKey int) ([]Lap, error)
	PitStops(ctx context.Context, sessionKey int) ([]PitStop, error)
}

// Meeting is a race weekend.
type Meeting struct {
	MeetingKey       int    `json:"meeting_key"`
	MeetingName      string `json:"meeting_name"`
	MeetingOfficial  string `json:"meeting_official_name"`
	Location         string `json:"location"`
	CountryName      string `json:"country_name"`
	CircuitShortName string `json:"circuit_short_name"`
	DateStart        string `json:"date_start"`
	Year             int    `json:"year"`
}

// Session is one timed session of a meeting.
type Session struct {
	SessionKey       int    `json:"session_key"`
	SessionName      string `json:"session_name"`
	SessionType      string `json:"session_type"`
	MeetingKey       int    `json:"meeting_key"`
	Location         string `json:"location"`
	CountryName      string `json:"country_name"`
	CircuitShortName string `json:"circuit_short_name"`
	DateStart        string `json:"date_start"`
	Year             int    `json:"year"`
}

// SessionQuery filters /sessions. Zero fields are not sent.
type SessionQuery struct {
	Year        int
	MeetingKey  int
	SessionName string
}

// Driver is a driver entry for a session.
type Driver struct {
	DriverNumber  int    `json:"driver_number"`
	BroadcastName string `json:"broadcast_name"`
	FullName      string `json:"full_name"`
	NameAcronym   string `json:"name_acronym"`
	TeamName      string `json:"team_name"`
}

// Lap is one timed lap. Pointer fields are nil where the API returned null.
type Lap struct {
	DriverNumber int      `json:"driver_number"`
	LapNumber    int      `json:"lap_number"`
	LapDuration  *float64 `json:"lap_duration"`
	IsPitOutLap  bool     `json:"is_pit_out_lap"`
	I1Speed      *float64 `json:"i1_speed"`
	I2Speed      *float64 `json:"i2_speed"`
	STSpeed      *float64 `json:"st_speed"`
}

// PitStop is one pit lane visit.
type PitStop struct {
	DriverNumber int      `json:"driver_number"`
	LapNumber    int      `json:"lap_number"`
	PitDuration  *float64 `json:"pit_duration"`
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

func get[T any](ctx context.Context, c *httpClient, endpoint string, q url.Values) ([]T, error) {
	u := c.baseURL + "/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	out, err := fetcher.FetchJSONArray[T](ctx, c.f, u)
	if err != nil {
		return nil, eris.Wrapf(err, "openf1: get %s", endpoint)
	}
	return out, nil
}

func sessionKey(key int) url.Values {
	return url.Values{"session_key": {strconv.Itoa(key)}}
}

func (c *httpClient) Meetings(ctx context.Context, year int) ([]Meeting, error) {
	return get[Meeting](ctx, c, "meetings", url.Values{"year": {strconv.Itoa(year)}})
}

func (c *httpClient) Sessions(ctx context.Context, q SessionQuery) ([]Session, error) {
	v := url.Values{}
	if q.Year != 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	if q.MeetingKey != 0 {
		v.Set("meeting_key", strconv.Itoa(q.MeetingKey))
	}
	if q.SessionName != "" {
		v.Set("session_name", q.SessionName)
	}
	return get[Session](ctx, c, "sessions", v)
}

func (c *httpClient) Drivers(ctx context.Context, key int) ([]Driver, error) {
	return get[Driver](ctx, c, "drivers", sessionKey(key))
}

func (c *httpClient) Laps(ctx context.Context, key int) ([]Lap, error) {
	return get[Lap](ctx, c, "laps", sessionKey(key))
}

func (c *httpClient) PitStops(ctx context.Context, key int) ([]PitStop, error) {
	return get[PitStop](ctx, c, "pit", sessionKey(key))
}

var sessionNames = map[string]string{
	"FP1": "Practice 1",
	"FP2": "Practice 2",
	"FP3": "Practice 3",
	"Q":   "Qualifying",
	"SQ":  "Sprint Qualifying",
	"S":   "Sprint",
	"R":   "Race",
}

// SessionName expands the short session codes (FP1, Q, R, ...) into OpenF1
// session names. Anything else is returned unchanged.
func SessionName(s string) string {
	if name, ok := sessionNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return name
	}
	return strings.TrimSpace(s)
}

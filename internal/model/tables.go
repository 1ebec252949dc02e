// Package model defines the rows of the historical CSV tables and the derived
// tables written by the ETL commands.
package model

import (
	"strings"
	"time"
)

// Race is one row of races.csv.
type Race struct {
	RaceID    int
	Year      int
	Round     int
	CircuitID int
	Name      string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM:SS, may be empty
}

// EventTime returns the race start in UTC, treating a missing time as
// midnight. ok is false when the date does not parse.
func (r Race) EventTime() (t time.Time, ok bool) {
	date := strings.TrimSpace(r.Date)
	if date == "" || date == `\N` {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, false
	}

	clock := strings.TrimSpace(strings.TrimSuffix(r.Time, "Z"))
	if clock == "" || clock == `\N` {
		return day.UTC(), true
	}
	at, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		return time.Time{}, false
	}
	return at.UTC(), true
}

// Result is one row of results.csv: one driver in one race.
type Result struct {
	ResultID        int
	RaceID          int
	DriverID        int
	ConstructorID   int
	Grid            float64 // NaN when missing
	PositionText    string
	StatusID        int // 0 when the column is missing
	FastestLapSpeed float64
	FastestLapTime  string
}

// Qualifying is one row of qualifying.csv.
type Qualifying struct {
	RaceID   int
	DriverID int
	Q1       string
	Q2       string
	Q3       string
}

// Sessions returns the three timed-session strings in order.
func (q Qualifying) Sessions() []string {
	return []string{q.Q1, q.Q2, q.Q3}
}

// LapTime is one row of lap_times.csv.
type LapTime struct {
	RaceID       int
	DriverID     int
	Lap          int
	Milliseconds float64
}

// PitStop is one row of pit_stops.csv.
type PitStop struct {
	RaceID       int
	DriverID     int
	Stop         int
	Duration     string
	Milliseconds float64 // NaN when missing
}

// Driver is one row of drivers.csv.
type Driver struct {
	DriverID int
	Code     string
	Forename string
	Surname  string
}

// FullName joins the trimmed forename and surname.
func (d Driver) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(d.Forename) + " " + strings.TrimSpace(d.Surname))
}

// Constructor is one row of constructors.csv.
type Constructor struct {
	ConstructorID int
	Name          string
}

// Status is one row of status.csv.
type Status struct {
	StatusID int
	Status   string
}

// Circuit is one row of circuits.csv.
type Circuit struct {
	CircuitID int
	Ref       string
	Name      string
	Location  string
	Country   string
	Lat       float64
	Lng       float64
}

package model

import (
	"math"
	"strconv"
)

// NA is the "not available" value of every numeric output field.
func NA() float64 { return math.NaN() }

// IsNA reports whether v is unavailable.
func IsNA(v float64) bool { return math.IsNaN(v) }

// FormatFloat renders v for CSV output; unavailable values become "".
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DriverMetricsColumns is the fixed, order-significant new-schema header.
var DriverMetricsColumns = []string{
	"driver_name",
	"team_name",
	"grid_position",
	"qualy_gap_ms",
	"fp_longrun_pace_s",
	"straightline_index",
	"cornering_index",
	"pit_crew_mean_s",
	"dnf_rate",
	"sc_prob",
	"rain_prob",
	"speed_trap_kph",
}

// DriverMetrics is one output row of `f1-etl build`.
type DriverMetrics struct {
	DriverID          int `json:"-"`
	ConstructorID     int `json:"-"`
	DriverName        string
	TeamName          string
	GridPosition      float64
	QualyGapMS        float64
	FPLongRunPaceS    float64
	StraightlineIndex float64
	CorneringIndex    float64
	PitCrewMeanS      float64
	DNFRate           float64
	SCProb            float64
	RainProb          float64
	SpeedTrapKPH      float64
}

// NewDriverMetrics returns a row with every numeric field unavailable.
func NewDriverMetrics(driverID, constructorID int, driverName, teamName string) DriverMetrics {
	return DriverMetrics{
		DriverID:          driverID,
		ConstructorID:     constructorID,
		DriverName:        driverName,
		TeamName:          teamName,
		GridPosition:      NA(),
		QualyGapMS:        NA(),
		FPLongRunPaceS:    NA(),
		StraightlineIndex: NA(),
		CorneringIndex:    NA(),
		PitCrewMeanS:      NA(),
		DNFRate:           NA(),
		SCProb:            NA(),
		RainProb:          NA(),
		SpeedTrapKPH:      NA(),
	}
}

// Record renders the row in DriverMetricsColumns order.
func (m DriverMetrics) Record() []string {
	return []string{
		m.DriverName,
		m.TeamName,
		FormatFloat(m.GridPosition),
		FormatFloat(m.QualyGapMS),
		FormatFloat(m.FPLongRunPaceS),
		FormatFloat(m.StraightlineIndex),
		FormatFloat(m.CorneringIndex),
		FormatFloat(m.PitCrewMeanS),
		FormatFloat(m.DNFRate),
		FormatFloat(m.SCProb),
		FormatFloat(m.RainProb),
		FormatFloat(m.SpeedTrapKPH),
	}
}

// SessionDriverColumns is the header of the session extractor output.
var SessionDriverColumns = []string{
	"driver_id",
	"driver_name",
	"team_id",
	"team_name",
	"grid_position",
	"qualy_position",
	"qualy_gap_ms",
	"fp_longrun_pace_s",
	"straightline_index",
	"cornering_index",
	"pit_crew_mean_s",
	"dnf_rate",
}

// SessionDriver is one output row of `f1-etl session`.
type SessionDriver struct {
	DriverID          string
	DriverName        string
	TeamID            string
	TeamName          string
	GridPosition      int
	QualyPosition     int
	QualyGapMS        float64
	FPLongRunPaceS    float64
	StraightlineIndex float64
	CorneringIndex    float64
	PitCrewMeanS      float64
	DNFRate           float64
}

// Record renders the row in SessionDriverColumns order.
func (s SessionDriver) Record() []string {
	return []string{
		s.DriverID,
		s.DriverName,
		s.TeamID,
		s.TeamName,
		strconv.Itoa(s.GridPosition),
		strconv.Itoa(s.QualyPosition),
		FormatFloat(s.QualyGapMS),
		FormatFloat(s.FPLongRunPaceS),
		FormatFloat(s.StraightlineIndex),
		FormatFloat(s.CorneringIndex),
		FormatFloat(s.PitCrewMeanS),
		FormatFloat(s.DNFRate),
	}
}

// RaceFeaturesColumns is the header of the race features output.
var RaceFeaturesColumns = []string{
	"race_id",
	"season",
	"round",
	"circuit_id",
	"circuit_name",
	"country",
	"date_local",
	"start_time_local",
	"timezone",
	"laps",
	"track_length_km",
	"altitude_m",
	"drs_zones",
	"overtake_index",
	"pit_lane_loss_s",
	"sc_prob",
	"vsc_prob",
	"sc_avg_count",
	"retire_prob",
	"tyre_stress",
	"asphalt_grip",
	"asphalt_roughness",
	"track_temp_typical_c",
	"wind_typical_kph",
	"rain_prob",
}

// RaceFeatures is the single output row of `f1-etl race-features`.
type RaceFeatures struct {
	RaceID            string
	Season            int
	Round             int
	CircuitID         string
	CircuitName       string
	Country           string
	DateLocal         string
	StartTimeLocal    string
	Timezone          string
	Laps              int
	TrackLengthKM     float64
	AltitudeM         int
	DRSZones          int
	OvertakeIndex     float64
	PitLaneLossS      float64
	SCProb            float64
	VSCProb           float64
	SCAvgCount        float64
	RetireProb        float64
	TyreStress        int
	AsphaltGrip       int
	AsphaltRoughness  int
	TrackTempTypicalC float64
	WindTypicalKPH    float64
	RainProb          float64
}

// Record renders the row in RaceFeaturesColumns order.
func (r RaceFeatures) Record() []string {
	return []string{
		r.RaceID,
		strconv.Itoa(r.Season),
		strconv.Itoa(r.Round),
		r.CircuitID,
		r.CircuitName,
		r.Country,
		r.DateLocal,
		r.StartTimeLocal,
		r.Timezone,
		strconv.Itoa(r.Laps),
		FormatFloat(r.TrackLengthKM),
		strconv.Itoa(r.AltitudeM),
		strconv.Itoa(r.DRSZones),
		FormatFloat(r.OvertakeIndex),
		FormatFloat(r.PitLaneLossS),
		FormatFloat(r.SCProb),
		FormatFloat(r.VSCProb),
		FormatFloat(r.SCAvgCount),
		FormatFloat(r.RetireProb),
		strconv.Itoa(r.TyreStress),
		strconv.Itoa(r.AsphaltGrip),
		strconv.Itoa(r.AsphaltRoughness),
		FormatFloat(r.TrackTempTypicalC),
		FormatFloat(r.WindTypicalKPH),
		FormatFloat(r.RainProb),
	}
}

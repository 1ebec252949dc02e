package orchestrator

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/f1-etl/internal/version"
)

// SupportedSchemaMajor is the circuits file major version this build reads.
const SupportedSchemaMajor = 1

// Circuits is the parsed circuits.yaml.
type Circuits struct {
	SchemaVersion string             `yaml:"schema_version"`
	Defaults      Defaults           `yaml:"defaults"`
	Circuits      map[string]Circuit `yaml:"circuits"`
	Seasons       map[int]Season     `yaml:"seasons"`
}

// Defaults apply when the command line leaves a value unset.
type Defaults struct {
	Session   string `yaml:"session"`
	StartTime string `yaml:"start_time"`
	OutputDir string `yaml:"output_dir"`
	Season    int    `yaml:"season"`
}

// Circuit is the static description of one track.
type Circuit struct {
	Name             string  `yaml:"name"`
	Country          string  `yaml:"country"`
	Timezone         string  `yaml:"timezone"`
	Laps             int     `yaml:"laps"`
	TrackLengthKM    float64 `yaml:"track_length_km"`
	Lat              float64 `yaml:"lat"`
	Lon              float64 `yaml:"lon"`
	AltitudeM        int     `yaml:"altitude_m"`
	DRSZones         int     `yaml:"drs_zones"`
	OvertakeIndex    float64 `yaml:"overtake_index"`
	PitLaneLossS     float64 `yaml:"pit_lane_loss_s"`
	SCProb           float64 `yaml:"sc_prob"`
	VSCProb          float64 `yaml:"vsc_prob"`
	SCAvgCount       float64 `yaml:"sc_avg_count"`
	RetireProb       float64 `yaml:"retire_prob"`
	TyreStress       int     `yaml:"tyre_stress"`
	AsphaltGrip      int     `yaml:"asphalt_grip"`
	AsphaltRoughness int     `yaml:"asphalt_roughness"`
}

// Season lists the known race dates of a year.
type Season struct {
	Rounds map[int]Round `yaml:"rounds"`
}

// Round is one scheduled race.
type Round struct {
	Date    string `yaml:"date"`
	Circuit string `yaml:"circuit"`
}

// LoadCircuits reads and checks a circuits file. A missing schema_version
// is read as the current major.
func LoadCircuits(path string) (*Circuits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: read circuits file %s", path)
	}
	var c Circuits
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "orchestrator: parse circuits file %s", path)
	}
	if strings.TrimSpace(c.SchemaVersion) != "" {
		v, err := version.ParseString(c.SchemaVersion)
		if err != nil {
			return nil, eris.Wrap(err, "orchestrator: schema_version")
		}
		if v.Major != SupportedSchemaMajor {
			return nil, eris.Errorf("orchestrator: unsupported circuits schema %s (want %d.x)", v, SupportedSchemaMajor)
		}
	}
	if len(c.Circuits) == 0 {
		return nil, eris.Errorf("orchestrator: no circuits defined in %s", path)
	}
	return &c, nil
}

// Circuit returns the named circuit or an error listing the known ids.
func (c *Circuits) Circuit(id string) (Circuit, error) {
	if circuit, ok := c.Circuits[id]; ok {
		return circuit, nil
	}
	known := make([]string, 0, len(c.Circuits))
	for k := range c.Circuits {
		known = append(known, k)
	}
	sort.Strings(known)
	return Circuit{}, eris.Errorf("Circuit '%s' not found. Available: %s", id, strings.Join(known, ", "))
}

// RaceDate returns the configured date of season/round, if any.
func (c *Circuits) RaceDate(season, round int) (string, bool) {
	s, ok := c.Seasons[season]
	if !ok {
		return "", false
	}
	r, ok := s.Rounds[round]
	if !ok || r.Date == "" {
		return "", false
	}
	return r.Date, true
}

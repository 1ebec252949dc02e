package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const raceCSV = "race_id,circuit_id,date_local\n2024_monza_race,monza,2024-09-01\n"

func TestCrossValidate(t *testing.T) {
	dir := t.TempDir()
	drivers := writeFile(t, dir, "d.csv", "\ufeffdriver_id,driver_name,team_name\nver,Max Verstappen,Red Bull\nlec,Charles Leclerc,Ferrari\n")
	race := writeFile(t, dir, "r.csv", raceCSV)

	// Two drivers is outside the plausible range but only warns.
	n, err := CrossValidate(drivers, race, DefaultMinDrivers, DefaultMaxDrivers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCrossValidate_Failures(t *testing.T) {
	dir := t.TempDir()
	race := writeFile(t, dir, "r.csv", raceCSV)
	drivers := writeFile(t, dir, "d.csv", "driver_id,driver_name,team_name\nver,Max,Red Bull\n")

	tests := []struct {
		name    string
		drivers string
		race    string
		want    string
	}{
		{"missing driver file", dir + "/nope.csv", race, "open"},
		{"empty driver file", writeFile(t, dir, "empty.csv", ""), race, "driver file is empty"},
		{"header only", writeFile(t, dir, "hdr.csv", "driver_id,driver_name,team_name\n"), race, "driver file is empty"},
		{"empty race file", drivers, writeFile(t, dir, "r0.csv", "race_id,circuit_id,date_local\n"), "race features file is empty"},
		{"missing driver columns", writeFile(t, dir, "d2.csv", "driver_name,team\nMax,RB\n"), race, "missing required driver columns: [driver_id team_name]"},
		{"missing race columns", drivers, writeFile(t, dir, "r2.csv", "race_id,date\nx,y\n"), "missing required race columns: [circuit_id date_local]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CrossValidate(tt.drivers, tt.race, DefaultMinDrivers, DefaultMaxDrivers)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

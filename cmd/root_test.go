package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/f1-etl/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"build", "session", "race-features", "all", "legacy", "dataset", "runs", "version"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "f1-etl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	for _, name := range []string{"log-level", "insecure", "ca-bundle", "proxy"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing persistent flag %q", name)
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "INFO", "")
	cmd.Flags().Bool("insecure", false, "")
	cmd.Flags().String("ca-bundle", "", "")
	cmd.Flags().String("proxy", "", "")

	c := &config.Config{
		Log:  config.LogConfig{Level: "info"},
		HTTP: config.HTTPConfig{Proxy: "http://config:8080"},
	}

	// Unset flags leave config alone.
	applyGlobalFlags(cmd, c)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "http://config:8080", c.HTTP.Proxy)

	require.NoError(t, cmd.Flags().Set("log-level", "WARNING"))
	require.NoError(t, cmd.Flags().Set("insecure", "true"))
	require.NoError(t, cmd.Flags().Set("ca-bundle", "/etc/ca.pem"))
	applyGlobalFlags(cmd, c)
	assert.Equal(t, "WARNING", c.Log.Level)
	assert.True(t, c.HTTP.Insecure)
	assert.Equal(t, "/etc/ca.pem", c.HTTP.CABundle)
	assert.Equal(t, "http://config:8080", c.HTTP.Proxy)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{buildCmd, []string{"datasets", "scraper-output", "out", "out-file", "year", "round", "race", "history-window", "xlsx", "load"}},
		{sessionCmd, []string{"season", "event", "round", "session", "out"}},
		{raceFeaturesCmd, []string{"race-id", "circuit-id", "race-date", "start-time", "lat", "lon", "out"}},
		{allCmd, []string{"circuit", "season", "round", "event", "date", "output", "skip-drivers", "skip-race", "skip-validation", "config"}},
		{legacyCmd, []string{"drivers", "race", "out"}},
		{datasetFetchCmd, []string{"url", "dir", "force"}},
	}
	for _, tt := range tests {
		for _, name := range tt.flags {
			assert.NotNil(t, tt.cmd.Flags().Lookup(name), "%s: missing --%s", tt.cmd.Name(), name)
		}
	}

	assert.Equal(t, "FP2", sessionCmd.Flags().Lookup("session").DefValue)
	assert.Equal(t, "Europe/Rome", raceFeaturesCmd.Flags().Lookup("timezone").DefValue)
	assert.Equal(t, "5", buildCmd.Flags().Lookup("history-window").DefValue)
}

func TestRaceFeaturesInput(t *testing.T) {
	require.NoError(t, raceFeaturesCmd.Flags().Set("race-id", "2024_monza_race"))
	require.NoError(t, raceFeaturesCmd.Flags().Set("lat", "45.6156"))
	require.NoError(t, raceFeaturesCmd.Flags().Set("laps", "53"))

	in := raceFeaturesInput(raceFeaturesCmd)
	assert.Equal(t, "2024_monza_race", in.RaceID)
	assert.InDelta(t, 45.6156, in.Lat, 1e-9)
	assert.Equal(t, 53, in.Laps)
	assert.Equal(t, 2, in.DRSZones)
	assert.InDelta(t, 0.08, in.RetireProb, 1e-9)
}

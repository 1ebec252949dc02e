package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/export"
	"github.com/sells-group/f1-etl/internal/racefeatures"
)

var raceFeaturesCmd = &cobra.Command{
	Use:   "race-features",
	Short: "Build the race features row with Open-Meteo rain probability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in := raceFeaturesInput(cmd)
		out, _ := cmd.Flags().GetString("out")

		clients, err := initClients(cfg)
		if err != nil {
			return err
		}
		row, err := racefeatures.New(clients.openmeteo).Build(ctx, in)
		if err != nil {
			return err
		}
		if err := export.WriteRaceFeatures(out, row); err != nil {
			return err
		}
		zap.L().Info("wrote race features", zap.String("path", out), zap.String("race_id", row.RaceID))
		return nil
	},
}

func raceFeaturesInput(cmd *cobra.Command) racefeatures.Input {
	f := cmd.Flags()
	var in racefeatures.Input
	in.RaceID, _ = f.GetString("race-id")
	in.Season, _ = f.GetInt("season")
	in.Round, _ = f.GetInt("round")
	in.CircuitID, _ = f.GetString("circuit-id")
	in.CircuitName, _ = f.GetString("circuit-name")
	in.Country, _ = f.GetString("country")
	in.RaceDate, _ = f.GetString("race-date")
	in.StartTime, _ = f.GetString("start-time")
	in.Timezone, _ = f.GetString("timezone")
	in.Laps, _ = f.GetInt("laps")
	in.TrackLengthKM, _ = f.GetFloat64("track-length-km")
	in.AltitudeM, _ = f.GetInt("altitude-m")
	in.DRSZones, _ = f.GetInt("drs-zones")
	in.OvertakeIndex, _ = f.GetFloat64("overtake-index")
	in.PitLaneLossS, _ = f.GetFloat64("pit-lane-loss-s")
	in.SCProb, _ = f.GetFloat64("sc-prob")
	in.VSCProb, _ = f.GetFloat64("vsc-prob")
	in.SCAvgCount, _ = f.GetFloat64("sc-avg-count")
	in.RetireProb, _ = f.GetFloat64("retire-prob")
	in.TyreStress, _ = f.GetInt("tyre-stress")
	in.AsphaltGrip, _ = f.GetInt("asphalt-grip")
	in.AsphaltRoughness, _ = f.GetInt("asphalt-roughness")
	in.Lat, _ = f.GetFloat64("lat")
	in.Lon, _ = f.GetFloat64("lon")
	return in
}

func init() {
	d := racefeatures.Defaults()
	f := raceFeaturesCmd.Flags()
	f.String("race-id", "", "race identifier, e.g. 2024_monza_race")
	f.Int("season", 0, "season year")
	f.Int("round", 0, "round number")
	f.String("circuit-id", "", "circuit identifier")
	f.String("circuit-name", "", "circuit display name")
	f.String("country", "", "country")
	f.String("race-date", "", "local race date (YYYY-MM-DD)")
	f.String("start-time", "", "local start time (HH:MM)")
	f.String("timezone", d.Timezone, "IANA timezone of the circuit")
	f.Int("laps", 0, "race distance in laps")
	f.Float64("track-length-km", 0, "lap length in km")
	f.Int("altitude-m", d.AltitudeM, "altitude in metres")
	f.Int("drs-zones", d.DRSZones, "number of DRS zones")
	f.Float64("overtake-index", d.OvertakeIndex, "overtaking difficulty index")
	f.Float64("pit-lane-loss-s", d.PitLaneLossS, "pit lane time loss in seconds")
	f.Float64("sc-prob", d.SCProb, "safety car probability")
	f.Float64("vsc-prob", d.VSCProb, "virtual safety car probability")
	f.Float64("sc-avg-count", d.SCAvgCount, "average safety car count")
	f.Float64("retire-prob", d.RetireProb, "retirement probability")
	f.Int("tyre-stress", d.TyreStress, "tyre stress (1-5)")
	f.Int("asphalt-grip", d.AsphaltGrip, "asphalt grip (1-5)")
	f.Int("asphalt-roughness", d.AsphaltRoughness, "asphalt roughness (1-5)")
	f.Float64("lat", 0, "circuit latitude")
	f.Float64("lon", 0, "circuit longitude")
	f.String("out", "", "output CSV path")
	for _, name := range []string{
		"race-id", "season", "round", "circuit-id", "circuit-name", "country",
		"race-date", "start-time", "laps", "track-length-km", "lat", "lon", "out",
	} {
		_ = raceFeaturesCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(raceFeaturesCmd)
}

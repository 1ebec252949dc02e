package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/export"
	"github.com/sells-group/f1-etl/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Extract per-driver session metrics from OpenF1",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		season, _ := f.GetInt("season")
		event, _ := f.GetString("event")
		round, _ := f.GetInt("round")
		name, _ := f.GetString("session")
		out, _ := f.GetString("out")
		if event == "" && round == 0 {
			return eris.New("either --event or --round must be provided")
		}

		clients, err := initClients(cfg)
		if err != nil {
			return err
		}
		rows, err := session.New(clients.openf1, clients.ergast).Extract(ctx, session.Options{
			Season:  season,
			Event:   event,
			Round:   round,
			Session: name,
		})
		if err != nil {
			return err
		}
		if err := export.WriteSessionDrivers(out, rows); err != nil {
			return err
		}
		zap.L().Info("wrote session drivers", zap.String("path", out), zap.Int("rows", len(rows)))
		return nil
	},
}

func init() {
	f := sessionCmd.Flags()
	f.Int("season", 0, "F1 season year")
	f.String("event", "", "event name, e.g. Italy or Monza")
	f.Int("round", 0, "round number (alternative to --event)")
	f.String("session", "FP2", "session name (FP1, FP2, FP3, Q, S, R)")
	f.String("out", "", "output CSV path")
	_ = sessionCmd.MarkFlagRequired("season")
	_ = sessionCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(sessionCmd)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/f1-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "f1-etl",
	Short:        "Formula 1 statistics ETL",
	Long:         "Fetches session timing, qualifying, weather and historical results, and reshapes them into flat CSV files for the predictor front-end.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyGlobalFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

// applyGlobalFlags lets explicitly set persistent flags win over config.
func applyGlobalFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("insecure") {
		c.HTTP.Insecure, _ = flags.GetBool("insecure")
	}
	if flags.Changed("ca-bundle") {
		c.HTTP.CABundle, _ = flags.GetString("ca-bundle")
	}
	if flags.Changed("proxy") {
		c.HTTP.Proxy, _ = flags.GetString("proxy")
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "INFO", "logging verbosity (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	pf.Bool("insecure", false, "disable TLS certificate verification")
	pf.String("ca-bundle", "", "path to an extra root CA PEM to trust")
	pf.String("proxy", "", "HTTP(S) proxy URL")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

package cmd

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "goldpair",
	Short: "Webhook-driven two-leg gold trading engine",
	Long: `Goldpair turns webhook signals into paired market positions on a single
instrument and manages each pair with checkpoints, a break-even move and an
ATR-scaled trailing stop.

Every entry opens two equal legs: a partial leg that is banked at the
second checkpoint and a trailing leg that rides the trend. A reconciler
keeps the tracked pairs aligned with the broker's open positions.

Commands:
  serve    - run the engine and the webhook server
  config   - generate or validate configuration files
  journal  - query the SQLite audit journal
  send     - post a signal to a running server
  version  - print the version`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); environment variables override it")
}

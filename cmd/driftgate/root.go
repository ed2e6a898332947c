package main

import "github.com/spf13/cobra"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "driftgate",
		Short: "Gate dataset statistics on example-count drift",
		Long: `driftgate validates dataset statistics snapshots against declared
example-count comparators and, in calibrate mode, widens comparator
bounds to cover the observed history.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.AddCommand(serveCmd, validateCmd, constrainCmd)
}

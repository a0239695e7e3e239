package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "shopclock.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "sc",
		Short:        "Production timekeeping for the shop floor",
		Long:         "shopclock times operator activities against work orders and processes, and derives time-per-unit figures.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to shopclock config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newDBCmd(&configPath))
	cmd.AddCommand(newOperatorCmd(&configPath))
	cmd.AddCommand(newProcessCmd(&configPath))
	cmd.AddCommand(newWorkOrderCmd(&configPath))
	cmd.AddCommand(newMachineCmd(&configPath))
	cmd.AddCommand(newActivityCmd(&configPath))
	cmd.AddCommand(newReportCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sc %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

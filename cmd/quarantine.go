package cmd

import (
	"context"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Print rows that failed validation",
	Long: `Print quarantined rows as CSV with the reason each one was rejected,
the batch that found it and the original line from the source file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runQuarantine()
	},
}

var quarantineCfg = actions.QuarantineConfig{}

func runQuarantine() error {
	quarantineCfg.Connections = getConnectionLoader()
	quarantineCfg.StackDumpOnPanic = stackDumpOnPanic
	return actions.RunQuarantine(context.Background(), &quarantineCfg)
}

func init() {
	rootCmd.AddCommand(quarantineCmd)
	quarantineCmd.Flags().SortFlags = false
	switches.addFlag(quarantineCmd, &quarantineCfg.WarehouseName, "warehouse", "", true, "")
	switches.addFlag(quarantineCmd, &quarantineCfg.PipelineName, "pipeline-name", constants.DefaultPipelineName, false, "")
	switches.addFlag(quarantineCmd, &quarantineCfg.Limit, "limit", "100", false, "")
	switches.addFlag(quarantineCmd, &quarantineCfg.PrintHeader, "print-header", "true", false, "")
	switches.addFlag(quarantineCmd, &quarantineCfg.LogLevel, "log-level", "error", false, "")
}

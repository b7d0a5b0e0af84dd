package cmd

import (
	"context"
	"strconv"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkpoint, recent runs and warehouse totals",
	Long: `Show the pipeline checkpoint, the most recent runs from the execution log and
the warehouse totals. Supply the source file to also see how many rows and batches
are left to load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runStatus()
	},
}

var statusCfg = actions.StatusConfig{}

func runStatus() error {
	statusCfg.Connections = getConnectionLoader()
	statusCfg.StackDumpOnPanic = stackDumpOnPanic
	_, err := actions.RunStatus(context.Background(), &statusCfg)
	return err
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().SortFlags = false
	switches.addFlag(statusCmd, &statusCfg.WarehouseName, "warehouse", "", true, "")
	switches.addFlag(statusCmd, &statusCfg.PipelineName, "pipeline-name", constants.DefaultPipelineName, false, "")
	switches.addFlag(statusCmd, &statusCfg.SourceLocation, "source", "", false, "")
	switches.addFlag(statusCmd, &statusCfg.S3Region, "s3-region", "", false, "")
	switches.addFlag(statusCmd, &statusCfg.BatchSize, "batch-size", strconv.Itoa(constants.DefaultBatchSize), false, "")
	switches.addFlag(statusCmd, &statusCfg.NumLogEntries, "runs", strconv.Itoa(constants.DefaultStatusLogDepth), false, "")
	switches.addFlag(statusCmd, &statusCfg.Output, "output", "text", false, "")
	switches.addFlag(statusCmd, &statusCfg.LogLevel, "log-level", "error", false, "")
}

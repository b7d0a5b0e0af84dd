package cmd

import (
	"context"
	"errors"
	"strconv"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var loadNext bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one batch of source rows into the warehouse",
	Long: `Load one batch of rows from the source CSV file into the warehouse.

By default the batch after the last committed checkpoint is processed. Each run
stages the rows, appends new transactions, refreshes the dimensions and moves the
checkpoint forward in one transaction. Rows failing validation are quarantined.

Use 'batch' to re-run an earlier batch: rows that are already loaded are skipped.

Exit codes: 0 when the batch committed or there were no rows left,
1 when the batch failed, 2 when the configuration is invalid.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if loadNext && loadCfg.BatchNumber > 0 {
			return errors.New("use either 'next' or 'batch', not both")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLoad()
	},
}

var loadCfg = actions.LoadConfig{}

func runLoad() error {
	loadCfg.Connections = getConnectionLoader()
	loadCfg.StackDumpOnPanic = stackDumpOnPanic
	_, err := actions.RunLoad(context.Background(), &loadCfg)
	return err
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().SortFlags = false
	switches.addFlag(loadCmd, &loadCfg.WarehouseName, "warehouse", "", true, "")
	switches.addFlag(loadCmd, &loadCfg.SourceLocation, "source", "", true, "")
	switches.addFlag(loadCmd, &loadNext, "next", "false", false, "")
	switches.addFlag(loadCmd, &loadCfg.BatchNumber, "batch", "0", false, "")
	switches.addFlag(loadCmd, &loadCfg.BatchSize, "batch-size", strconv.Itoa(constants.DefaultBatchSize), false, "")
	switches.addFlag(loadCmd, &loadCfg.PipelineName, "pipeline-name", constants.DefaultPipelineName, false, "")
	switches.addFlag(loadCmd, &loadCfg.S3Region, "s3-region", "", false, "")
	switches.addFlag(loadCmd, &loadCfg.RulesFile, "rules", "", false, "")
	switches.addFlag(loadCmd, &loadCfg.TimeoutSeconds, "timeout", "0", false, "")
	switches.addFlag(loadCmd, &loadCfg.LockTTLSeconds, "lock-ttl", strconv.Itoa(constants.DefaultLockTTLSeconds), false, "")
	switches.addFlag(loadCmd, &loadCfg.PushGateway, "push-gateway", "", false, "")
	switches.addFlag(loadCmd, &loadCfg.LogLevel, "log-level", "warn", false, "")
}

package cmd

import (
	"github.com/relloyd/retail-loader/actions"
	"github.com/spf13/cobra"
)

var connTestCfg = actions.ConnectionTestConfig{}

var configConnTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that a connection can be opened",
	Long: `Open the connection and ping it. For Snowflake and Postgres the server version
is printed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connTestCfg.Connections = getConnectionLoader()
		connTestCfg.StackDumpOnPanic = stackDumpOnPanic
		return actions.RunConnectionTest(&connTestCfg)
	},
}

func initConnTest() {
	configConnCmd.AddCommand(configConnTestCmd)
	configConnTestCmd.Flags().SortFlags = false
	switches.addFlag(configConnTestCmd, &connTestCfg.ConnectionName, "connection-name", "", true, "")
	switches.addFlag(configConnTestCmd, &connTestCfg.LogLevel, "log-level", "error", false, "")
	configConnTestCmd.SilenceUsage = true
}

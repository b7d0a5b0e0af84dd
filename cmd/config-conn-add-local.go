package cmd

import (
	"fmt"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/config"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var configConnLocalCfg = &actions.ConnectionConfig{}
var localConn = actions.LocalConnection{}
var configConnMockCfg = &actions.ConnectionConfig{}

var configConnAddLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "Add a local warehouse kept in a JSON file",
	Long: fmt.Sprintf(`Add a local warehouse connection to the config store %q.
The warehouse is held in memory while a command runs and saved to the JSON file
at 'path' each time a batch commits. A lock file next to it stops two loads running at once.`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnLocalCfg.Type = constants.ConnectionTypeLocal
		configConnLocalCfg.ConfigFile = getConnectionGetterSetter()
		configConnLocalCfg.ConnDetails = &localConn
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnLocalCfg)
	},
}

var configConnAddMockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Add an in-memory warehouse for dry runs",
	Long:  `Add a warehouse connection that lives in memory only and is discarded when the command exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnMockCfg.Type = constants.ConnectionTypeMock
		configConnMockCfg.ConfigFile = getConnectionGetterSetter()
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnMockCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddLocalCmd)
	configConnAddLocalCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddLocalCmd, &configConnLocalCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddLocalCmd, &configConnLocalCfg.Force, "force-connection", "", false, "")
	switches.addFlag(configConnAddLocalCmd, &localConn.Path, "path", "", true, "")
	configConnAddCmd.AddCommand(configConnAddMockCmd)
	configConnAddMockCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddMockCmd, &configConnMockCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddMockCmd, &configConnMockCfg.Force, "force-connection", "", false, "")
}

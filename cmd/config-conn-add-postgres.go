package cmd

import (
	"fmt"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/config"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var configConnPostgresCfg = &actions.ConnectionConfig{}
var postgresConn = actions.PostgresConnection{}

var configConnAddPostgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Add a Postgres connection",
	Long: fmt.Sprintf(`Add a Postgres connection to the config store %q 
by providing a DSN of the form: 

postgres://<user>:<password>@<host>:<port>/<database-name>?sslmode=<mode>`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		configConnPostgresCfg.Type = constants.ConnectionTypePostgres
		configConnPostgresCfg.ConfigFile = getConnectionGetterSetter()
		configConnPostgresCfg.ConnDetails = &postgresConn
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(configConnPostgresCfg)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddPostgresCmd)
	configConnAddPostgresCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddPostgresCmd, &configConnPostgresCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddPostgresCmd, &configConnPostgresCfg.Force, "force-connection", "", false, "")
	switches.addFlag(configConnAddPostgresCmd, &postgresConn.Dsn, "dsn", "", true, "")
}

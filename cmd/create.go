package cmd

import (
	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate warehouse metadata",
	Long: `Generate DDL for the following:

- The staging, fact, dimension and control tables of a Snowflake or Postgres warehouse
`,
}

var createSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print or execute the warehouse DDL",
	Long: `Print the CREATE TABLE statements for the warehouse connection's dialect.
Use 'execute-ddl' to run them instead. Tables that exist already are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCreateSchema()
	},
}

var createSchemaCfg = actions.CreateSchemaConfig{}

func runCreateSchema() error {
	createSchemaCfg.Connections = getConnectionLoader()
	createSchemaCfg.StackDumpOnPanic = stackDumpOnPanic
	return actions.RunCreateSchema(&createSchemaCfg)
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.AddCommand(createSchemaCmd)
	createSchemaCmd.Flags().SortFlags = false
	switches.addFlag(createSchemaCmd, &createSchemaCfg.WarehouseName, "warehouse", "", true, "")
	switches.addFlag(createSchemaCmd, &createSchemaCfg.PipelineName, "pipeline-name", constants.DefaultPipelineName, false, "")
	switches.addFlag(createSchemaCmd, &createSchemaCfg.ExecuteDDL, "execute-ddl", "false", false, "")
	switches.addFlag(createSchemaCmd, &createSchemaCfg.LogLevel, "log-level", "warn", false, "")
}

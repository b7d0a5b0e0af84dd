package cmd

import (
	"net"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service to query the warehouse",
	Long: `Start a web service that answers read-only queries against the warehouse:

  GET /health
  GET /api/summary
  GET /api/products?order_by=revenue|quantity|customers&limit=<n>
  GET /api/products/{stockCode}
  GET /api/customers?segment=<segment>&limit=<n>
  GET /api/customers/{customerId}
  GET /api/countries
  GET /api/sales/metrics
  GET /api/batch/status?runs=<n>
  GET /api/quarantine?limit=<n>
  GET /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveConfig = actions.WebServerConfig{
	LogLevel: "info",
	Scheme:   "http",
	Addr:     net.IP{0, 0, 0, 0},
	Port:     8080,
}

func runServe() error {
	serveConfig.Connections = getConnectionLoader()
	serveConfig.StackDumpOnPanic = stackDumpOnPanic
	return actions.RunWebServer(&serveConfig)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.WarehouseName, "warehouse", "", true, "")
	switches.addFlag(serveCmd, &serveConfig.PipelineName, "pipeline-name", constants.DefaultPipelineName, false, "")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveConfig.LogLevel, "log-level", "info", false, "")
}

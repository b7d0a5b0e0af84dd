package cmd

import (
	"fmt"

	"github.com/relloyd/retail-loader/actions"
	"github.com/relloyd/retail-loader/config"
	"github.com/spf13/cobra"
)

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections",
	Long: fmt.Sprintf(`List connections stored in config store %q 
by printing them all to STDOUT with passwords redacted`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunConnectionList(config.Connections, nil)
	},
}

func initConnList() {
	configConnCmd.AddCommand(configConnListCmd)
}

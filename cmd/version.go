package cmd

import (
	"fmt"

	"github.com/relloyd/retail-loader/constants"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information for " + constants.AppName,
	Long:  `Show version information for ` + constants.AppName,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf(`%v
  Version:	%v
  Build date:	%v
  OS/Arch:	%v
`, constants.AppName, version, buildDate, osArch)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

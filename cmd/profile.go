package cmd

import (
	"context"

	"github.com/relloyd/retail-loader/actions"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile the source file before loading it",
	Long: `Read the whole source file and save a JSON data profile with per-column null counts,
distinct values, numeric ranges and the most common values, plus data quality counts
such as duplicates, returns, zero prices and missing customers.
The profile file may be an s3://bucket/key URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runProfile()
	},
}

var profileCfg = actions.ProfileConfig{}

func runProfile() error {
	profileCfg.StackDumpOnPanic = stackDumpOnPanic
	_, err := actions.RunProfile(context.Background(), &profileCfg)
	return err
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().SortFlags = false
	switches.addFlag(profileCmd, &profileCfg.SourceLocation, "source", "", true, "")
	switches.addFlag(profileCmd, &profileCfg.S3Region, "s3-region", "", false, "")
	switches.addFlag(profileCmd, &profileCfg.OutputFile, "profile-file", actions.DefaultProfileFile, false, "")
	switches.addFlag(profileCmd, &profileCfg.LogLevel, "log-level", "warn", false, "")
}

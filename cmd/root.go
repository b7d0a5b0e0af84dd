package cmd

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/relloyd/retail-loader/actions"
	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.1.0"
	buildDate        = "2026-10-18T00:00+0000"
	osArch           = "linux"
	stackDumpOnPanic bool
)

var rootCmd = &cobra.Command{
	Use: "rl",
	Long: `
retail-loader moves online retail transactions from a CSV file into a layered warehouse,
one batch per run. Each run stages the next slice of rows, appends new facts, refreshes the
product, customer and country dimensions and then commits a checkpoint so the following
run carries on where this one finished. Rejected rows are quarantined with a reason.

Run "rl load --next" from cron, a container or AWS Lambda. Use "rl serve" to query the
warehouse over HTTP and "rl status" to see how far the load has got.`,
}

func init() {
	// General setup.
	cobra.EnableCommandSorting = false
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if twelveFactorMode { // if we are running based on environment variables...
		if lambdaMode { // if we should handle lambda execution...
			lambda.Start(newTwelveFactorLambdaHandler())
		} else {
			if err := execute12FactorMode(twelveFactorActions); err != nil {
				// execute12FactorMode prints the error.
				os.Exit(actions.ExitCode(err))
			}
		}
	} else { // else we're using CLI args and flags via Cobra...
		if err := rootCmd.Execute(); err != nil {
			// Execute() prints the error.
			os.Exit(actions.ExitCode(err))
		}
	}
}

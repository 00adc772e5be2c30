// Package cmd holds the bank-ledger-api command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "bank-ledger-api",
	Short:         "Account ledger service with deposits, withdrawals and transfers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment is read")
}

// Execute runs the command selected on the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

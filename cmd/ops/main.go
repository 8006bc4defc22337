package main

import (
	"os"

	"github.com/promptlab/promptlab/cmd/ops/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ops",
		Short:         "Operations tools for promptlab",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.CreditCmd())
	rootCmd.AddCommand(cmd.BalanceCmd())
	rootCmd.AddCommand(cmd.CleanupStaleCmd())
	rootCmd.AddCommand(cmd.ErrorsCmd())
	rootCmd.AddCommand(cmd.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

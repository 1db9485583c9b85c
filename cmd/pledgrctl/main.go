package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pledgrctl",
		Short:         "Operator tools for the pledgr crowdfunding backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config-dir", ".", "directory holding config.env")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(feeCmd())
	rootCmd.AddCommand(payoutsCmd())

	return rootCmd
}

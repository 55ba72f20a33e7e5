package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "ssgc-admin",
		Short:        "Operator tools for the Startup Spark relay",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

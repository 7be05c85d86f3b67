package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Campaign dispatch microservice",
	Long:  "A microservice that dispatches bulk personalized email campaigns with quota tracking, retries, and resumable runs.",
}

// Execute runs the root Cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

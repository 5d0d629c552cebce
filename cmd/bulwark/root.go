package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bulwark",
	Short: "Bulwark - resilience and observability layer for LLM traffic",
	Long: `Bulwark is an HTTP gateway that adds client-side resilience to LLM
API traffic: per-model rate limiting, response caching, retries with
backoff, and request telemetry.

It speaks the OpenAI chat completion wire format on the client side and
fans out to any configured OpenAI-compatible provider endpoint.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sableworks/bulwark/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.

All problems are reported at once, so a broken file can be fixed in a
single pass.

Examples:
  # Validate the default config
  bulwark validate

  # Validate a specific file
  bulwark validate --config /etc/bulwark/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(os.Stderr, "%s: %d problem(s)\n", cfgFile, len(ve.Problems))
			for _, p := range ve.Problems {
				fmt.Fprintf(os.Stderr, "  - %s\n", p)
			}
			os.Exit(1)
		}
		return err
	}

	fmt.Printf("%s: valid\n", cfgFile)
	fmt.Printf("  providers: %d\n", len(cfg.Providers))
	fmt.Printf("  rate limits: %d\n", len(cfg.RateLimits))
	fmt.Printf("  cache: %s", cfg.Cache.Backend)
	if !cfg.Cache.Enabled {
		fmt.Print(" (disabled)")
	}
	fmt.Println()
	return nil
}

package main

import (
	"fmt"

	"github.com/jpalmerr/slotbox/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a slotbox configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  slotbox validate -c config.yaml
  slotbox validate --config /etc/slotbox/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	network, address, _ := cfg.Network()
	slots := "unlimited"
	if cfg.MaxSlots > 0 {
		slots = fmt.Sprintf("%d", cfg.MaxSlots)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Listen:        %s %s\n", network, address)
	fmt.Printf("  Buffer size:   %d bytes\n", cfg.BufferSize)
	fmt.Printf("  Endpoints:     0..%d\n", cfg.MaxEndpoints-1)
	fmt.Printf("  Sessions:      %d max\n", cfg.MaxSessions)
	fmt.Printf("  Slots:         %s\n", slots)
	fmt.Printf("  Idle timeout:  %s\n", cfg.SessionIdleTimeout.Duration())
	fmt.Printf("  Log level:     %s\n", cfg.LogLevel)

	return nil
}

// Package main is the entry point for the slotbox CLI.
//
// slotbox can be embedded as a library or run as a standalone server with
// YAML configuration. The same binary also acts as the external caller that
// sends and receives single messages.
//
// Usage:
//
//	slotbox serve -c config.yaml                  # Start the server
//	slotbox validate -c config.yaml               # Validate configuration
//	slotbox send /tmp/slotbox.sock/3 7 hello      # Store a message
//	slotbox receive /tmp/slotbox.sock/3 7         # Print the stored message
//	slotbox version                               # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "slotbox",
	Short: "A channel-addressed single-slot mailbox server",
	Long: `slotbox stores one short message per (endpoint, channel) pair.

Each write replaces the channel's message; reads are non-destructive and
never block. Endpoints are served over a unix socket or TCP address.

Quick start:
  1. Create a config file (slotbox.yaml)
  2. Run: slotbox serve -c slotbox.yaml
  3. Run: slotbox send /tmp/slotbox.sock/3 7 hello
  4. Run: slotbox receive /tmp/slotbox.sock/3 7

Example config:
  listen: unix:///tmp/slotbox.sock
  buffer_size: 128
  max_endpoints: 256`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this slotbox binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("slotbox %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

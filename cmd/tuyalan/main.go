// Command tuyalan is a CLI for talking to Tuya-compatible Wi-Fi devices
// directly over the local network.
//
// Usage:
//
//	tuyalan [command] [flags]
//
// See 'tuyalan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/tuyalan/internal/logging"
	"github.com/muurk/tuyalan/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "tuyalan",
	Short: "Tuya LAN device CLI",
	Long: `A standalone CLI for connecting to and controlling Tuya-compatible
Wi-Fi devices over the local network, without cloud mediation.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tuyalan %s (commit: %s)\n", version.Version, version.Commit)
	},
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "btlink",
	Short: "Bluetooth Classic connection tool",
	Long: `Bluetooth Classic (RFCOMM/SPP) command-line tool that provides:

- Scan and discover nearby devices
- List bonded devices
- Manage the local adapter (name, discoverability)
- Connect to a remote device or serve an incoming connection
- Exchange data over the established session interactively
- Bridge a session to a PTY for serial-like access from other programs

Ideal for embedded bring-up, serial-over-Bluetooth peripherals, and
automated link testing.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(adapterCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(bridgeCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().Bool("sim", false, "Use the simulated radio instead of the system adapter")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

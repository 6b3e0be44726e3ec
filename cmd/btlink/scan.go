package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby devices",
	Long: `Scan for Bluetooth Classic devices in the vicinity.

Each distinct device is reported once per scan. Without --duration the scan
runs until interrupted with Ctrl+C.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanVerbose  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Verbose logging")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", scanFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	svc, _, err := newService(cmd, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if scanDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
	}

	events, unsub := svc.DiscoveryEvents()
	defer unsub()

	if err := svc.StartDiscovery(ctx); err != nil {
		return err
	}
	defer svc.StopDiscovery()

	progress := NewProgressPrinter("Scanning", "Discovering")
	if scanFormat == "table" {
		progress.Start()
	}

	found := color.New(color.FgGreen)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-events:
			if !ok {
				break loop
			}
			if scanFormat == "table" {
				progress.Stop()
				found.Printf("+ %s\n", d)
			}
		}
	}
	progress.Stop()
	svc.StopDiscovery()

	devices := svc.KnownDevices()

	if scanFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tBONDED")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%v\n", d.Address, d.Name, d.Bonded)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d device(s) found\n", len(devices))
	return nil
}

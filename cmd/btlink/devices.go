package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List bonded devices",
	Long:  `List devices previously paired at the OS level. The platform's bonded set is re-queried on every invocation.`,
	RunE:  runDevices,
}

var devicesFormat string

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
	if devicesFormat != "table" && devicesFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", devicesFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	svc, _, err := newService(cmd, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	bonded, err := svc.BondedDevices()
	if err != nil {
		return err
	}

	if devicesFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bonded)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME")
	for _, d := range bonded {
		fmt.Fprintf(w, "%s\t%s\n", d.Address, d.Name)
	}
	return w.Flush()
}

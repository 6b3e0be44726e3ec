package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// adapterCmd groups local-adapter operations
var adapterCmd = &cobra.Command{
	Use:   "adapter",
	Short: "Inspect and manage the local adapter",
}

var adapterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show adapter power state and name",
	RunE:  runAdapterStatus,
}

var adapterNameCmd = &cobra.Command{
	Use:   "name [new-name]",
	Short: "Show or change the adapter display name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAdapterName,
}

var adapterAdvertiseCmd = &cobra.Command{
	Use:   "advertise",
	Short: "Make the local device discoverable",
	RunE:  runAdapterAdvertise,
}

var advertiseDuration time.Duration

func init() {
	adapterAdvertiseCmd.Flags().DurationVarP(&advertiseDuration, "duration", "d", 0, "Discoverable window (0 = platform default)")
	adapterCmd.AddCommand(adapterStatusCmd)
	adapterCmd.AddCommand(adapterNameCmd)
	adapterCmd.AddCommand(adapterAdvertiseCmd)
}

func runAdapterStatus(cmd *cobra.Command, args []string) error {
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

	state := color.RedString("off")
	if svc.IsBluetoothOn() {
		state = color.GreenString("on")
	}
	fmt.Printf("Power: %s\n", state)

	name, err := svc.BluetoothName()
	if err != nil {
		return err
	}
	fmt.Printf("Name:  %s\n", name)
	return nil
}

func runAdapterName(cmd *cobra.Command, args []string) error {
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

	if len(args) == 0 {
		name, err := svc.BluetoothName()
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	}

	if !svc.ChangeBluetoothName(args[0]) {
		return fmt.Errorf("adapter rejected name %q", args[0])
	}
	fmt.Printf("Adapter name set to %q\n", args[0])
	return nil
}

func runAdapterAdvertise(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	svc, cfg, err := newService(cmd, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	d := advertiseDuration
	if d == 0 {
		d = cfg.DiscoverableDuration()
	}
	if err := svc.StartAdvertising(int(d / time.Second)); err != nil {
		return err
	}
	fmt.Printf("Discoverable for %s\n", d)
	return nil
}

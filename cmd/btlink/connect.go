package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <device-address>",
	Short: "Connect to a remote device and chat over the session",
	Long: `Establish an RFCOMM connection to the given device and exchange data
interactively: stdin lines are sent to the remote, inbound frames are printed.

Example:
  btlink connect AA:BB:CC:DD:EE:01 --sim`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events, unsub := svc.ConnectionEvents()

	progress := NewProgressPrinter("Connecting to "+args[0], "Handshake")
	progress.Start()

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer connectCancel()

	if err := svc.ConnectToDevice(connectCtx, args[0]); err != nil {
		progress.Stop()
		unsub()
		return err
	}

	dev, err := waitConnected(connectCtx, events)
	progress.Stop()
	unsub()
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	fmt.Printf("Connected to %s. Type to send, Ctrl+C to quit.\n", dev)
	return runChat(ctx, svc)
}

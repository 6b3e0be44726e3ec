package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/btlink/bridge"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge <device-address>",
	Short: "Bridge a device session to a PTY",
	Long: `Connect to the given device and expose the session as a pseudo-terminal,
so serial-minded programs can talk to the remote without knowing about
Bluetooth.

Example:
  btlink bridge AA:BB:CC:DD:EE:01 --tty-symlink /tmp/btlink-dev
  picocom /tmp/btlink-dev`,
	Args: cobra.ExactArgs(1),
	RunE: runBridge,
}

var bridgeTTYSymlink string

func init() {
	bridgeCmd.Flags().StringVar(&bridgeTTYSymlink, "tty-symlink", "", "Create a symlink to the PTY slave at this path")
}

func runBridge(cmd *cobra.Command, args []string) error {
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

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer connectCancel()

	if err := svc.ConnectToDevice(connectCtx, args[0]); err != nil {
		unsub()
		return err
	}

	dev, err := waitConnected(connectCtx, events)
	unsub()
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	symlink := bridgeTTYSymlink
	if symlink == "" {
		symlink = cfg.Bridge.TTYSymlink
	}

	b, err := bridge.New(svc.Session(), &bridge.Options{
		BufferSize: cfg.Bridge.BufferSize,
		TTYSymlink: symlink,
		Logger:     logger,
	})
	if err != nil {
		_ = svc.CloseConnection()
		return err
	}
	defer b.Close()

	fmt.Printf("Bridging %s to %s", dev, b.TTYName())
	if b.TTYSymlink() != "" {
		fmt.Printf(" (%s)", b.TTYSymlink())
	}
	fmt.Println(". Ctrl+C to stop.")

	select {
	case <-ctx.Done():
	case <-b.Done():
		fmt.Println("Session ended.")
	}

	stats := b.Stats()
	fmt.Printf("tx=%d rx=%d dropped=%d bytes\n", stats.TxBytes, stats.RxBytes, stats.DroppedBytes)
	return svc.CloseConnection()
}

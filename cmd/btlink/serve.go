package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept one incoming connection and chat over the session",
	Long: `Open the RFCOMM server endpoint and wait for a client. Once a client
connects the endpoint stops accepting; run serve again for the next session.

With --advertise the local device is made discoverable while waiting.`,
	RunE: runServe,
}

var serveAdvertise bool

func init() {
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "Make the device discoverable while waiting")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if serveAdvertise {
		if err := svc.StartAdvertising(int(cfg.DiscoverableDuration() / time.Second)); err != nil {
			return err
		}
	}

	events, unsub := svc.ConnectionEvents()

	if err := svc.StartServer(ctx); err != nil {
		unsub()
		return err
	}

	progress := NewProgressPrinter("Listening", "Waiting for client")
	progress.Start()

	dev, err := waitConnected(ctx, events)
	progress.Stop()
	unsub()
	if err != nil {
		_ = svc.CloseConnection()
		return err
	}

	fmt.Printf("Client connected: %s. Type to send, Ctrl+C to quit.\n", dev)
	return runChat(ctx, svc)
}

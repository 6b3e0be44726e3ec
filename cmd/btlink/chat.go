package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/srg/btlink"
	"github.com/srg/btlink/connmgr"
)

// waitConnected blocks until the manager reports an outcome: the connected
// device on success, an error carrying the diagnostic message otherwise.
func waitConnected(ctx context.Context, events <-chan connmgr.Event) (*btlink.Device, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("connection stream closed")
			}
			if ev.Success {
				return ev.Device, nil
			}
			return nil, fmt.Errorf("%s", ev.Message)
		}
	}
}

// runChat pumps stdin lines to the session and prints inbound frames until
// the remote disconnects, stdin ends, or ctx is canceled.
func runChat(ctx context.Context, svc *btlink.Service) error {
	frames, unsubData := svc.DataEvents()
	defer unsubData()
	events, unsubEv := svc.ConnectionEvents()
	defer unsubEv()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	remote := color.New(color.FgCyan)
	for {
		select {
		case <-ctx.Done():
			return svc.CloseConnection()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.Success {
				fmt.Printf("-- %s --\n", ev.Message)
				return nil
			}
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			remote.Printf("< %s\n", frame)
		case line, ok := <-lines:
			if !ok {
				return svc.CloseConnection()
			}
			if !svc.SendMessage([]byte(line)) {
				fmt.Println("-- send failed, connection lost --")
				return svc.CloseConnection()
			}
		}
	}
}

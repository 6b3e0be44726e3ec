package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/btlink"
	"github.com/srg/btlink/config"
	"github.com/srg/btlink/internal/device"
	"github.com/srg/btlink/internal/platform"
	"github.com/srg/btlink/internal/radiofactory"
)

// newService builds the Service from the --config and --sim flags. The caller
// owns the returned service and must Close it.
func newService(cmd *cobra.Command, logger *logrus.Logger) (*btlink.Service, *config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
	}

	var radio platform.Radio
	if sim, _ := cmd.Flags().GetBool("sim"); sim {
		radio = demoRadio()
	} else {
		var err error
		radio, err = radiofactory.RadioFactory(logger)
		if err != nil {
			return nil, nil, err
		}
	}

	svc := btlink.NewService(radio, &btlink.ServiceOptions{
		Logger:          logger,
		EventBufferSize: cfg.EventBufferSize,
		FrameBufferSize: cfg.FrameBufferSize,
	})
	return svc, cfg, nil
}

// demoRadio builds a simulated world with an echo peer, so every command can
// be exercised without hardware.
func demoRadio() *platform.SimRadio {
	radio := platform.NewSimRadio("btlink-sim")

	echo := radio.AddPeer(device.Device{Address: "AA:BB:CC:DD:EE:01", Name: "sim-echo"})
	go func() {
		for link := range echo.Incoming {
			go func(l io.ReadWriteCloser) {
				defer l.Close()
				_, _ = io.Copy(l, l)
			}(link)
		}
	}()

	radio.AddPeer(device.Device{Address: "AA:BB:CC:DD:EE:02", Name: "sim-silent"})
	radio.AddBonded(device.Device{Address: "AA:BB:CC:DD:EE:03", Name: "sim-bonded"})

	return radio
}

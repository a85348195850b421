// Command ibeacon broadcasts an iBeacon-style advertisement from the
// local Bluetooth radio until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"

	"github.com/nearfield/beacon"
)

const poweredOnTimeout = 5 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "ibeacon"
	app.Usage = "broadcast an iBeacon-style advertisement"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "uuid, u",
			Usage: "proximity UUID",
			Value: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0",
		},
		cli.IntFlag{
			Name:  "major",
			Usage: "major value (0-65535)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "minor",
			Usage: "minor value (0-65535)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "power, p",
			Usage: "measured power at 1m, dBm",
			Value: int(beacon.DefaultMeasuredPower),
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read the descriptor from a YAML file instead of flags",
		},
		cli.DurationFlag{
			Name:  "duration, d",
			Usage: "advertising duration, 0 for indefinitely",
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "print the descriptor as JSON before starting",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "verbose logging",
		},
		cli.StringFlag{
			Name:  "transport, t",
			Usage: "radio transport: bluez, socket or uart (linux only)",
			Value: "bluez",
		},
		cli.IntFlag{
			Name:  "device",
			Usage: "hci device index for the socket transport, -1 for any",
			Value: -1,
		},
		cli.StringFlag{
			Name:  "uart",
			Usage: "serial device path for the uart transport",
		},
		cli.StringFlag{
			Name:  "adapter",
			Usage: "bluez adapter name",
			Value: "hci0",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func descriptor(c *cli.Context) (beacon.Descriptor, error) {
	if path := c.String("config"); path != "" {
		return LoadConfig(path)
	}

	u, err := beacon.Parse(c.String("uuid"))
	if err != nil {
		return beacon.Descriptor{}, err
	}
	major, minor := c.Int("major"), c.Int("minor")
	if major < 0 || major > 0xFFFF || minor < 0 || minor > 0xFFFF {
		return beacon.Descriptor{}, fmt.Errorf("major/minor out of range: %d/%d", major, minor)
	}
	return beacon.NewDescriptor(u, uint16(major), uint16(minor),
		beacon.WithMeasuredPower(int8(c.Int("power")))), nil
}

// cliListener forwards lifecycle events to the logger and to run's wait
// channels.
type cliListener struct {
	log       beacon.Logger
	poweredOn chan struct{}
	outcome   chan error
}

func (l *cliListener) RadioPoweredOn() {
	l.log.Info("radio powered on")
	select {
	case l.poweredOn <- struct{}{}:
	default:
	}
}

func (l *cliListener) DidStartAdvertising() {
	l.log.Info("advertising started")
	l.outcome <- nil
}

func (l *cliListener) DidFailToStartAdvertising(err error) {
	l.outcome <- err
}

func (l *cliListener) DidFailToStartAdvertisingRadioDisabled() {
	l.outcome <- fmt.Errorf("radio is disabled")
}

func (l *cliListener) DidStopAdvertising() {
	l.log.Info("advertising stopped")
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		if err := beacon.SetLogLevel("debug"); err != nil {
			return err
		}
	}
	log := beacon.GetLogger().ChildLogger(map[string]interface{}{"component": "ibeacon"})

	d, err := descriptor(c)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		out, err := jsoniter.MarshalIndent(d.ToMap(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	radio, err := defaultRadio(c)
	if err != nil {
		return err
	}

	ctrl := beacon.NewController(radio)
	defer ctrl.Close()

	l := &cliListener{
		log:       log,
		poweredOn: make(chan struct{}, 1),
		outcome:   make(chan error, 1),
	}
	ctrl.SetListener(l)

	if radio.State() != beacon.RadioPoweredOn {
		log.Infof("waiting for the radio, currently %v", radio.State())
		select {
		case <-l.poweredOn:
		case <-time.After(poweredOnTimeout):
			return fmt.Errorf("radio not powered on after %v", poweredOnTimeout)
		}
	}

	ctrl.Start(d)
	if err := <-l.outcome; err != nil {
		return err
	}
	log.Infof("region %s", ctrl.RegionID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if du := c.Duration("duration"); du > 0 {
		select {
		case <-sig:
		case <-time.After(du):
		}
	} else {
		<-sig
	}

	ctrl.Stop()
	return nil
}

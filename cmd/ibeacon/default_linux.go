package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/nearfield/beacon"
	"github.com/nearfield/beacon/linux/bluez"
	"github.com/nearfield/beacon/linux/hci"
)

func defaultRadio(c *cli.Context) (beacon.Radio, error) {
	switch t := c.String("transport"); t {
	case "bluez":
		return bluez.NewRadio(c.String("adapter"))
	case "socket":
		return hci.NewSocketRadio(c.Int("device"))
	case "uart":
		return hci.NewUARTRadio(c.String("uart"), 0)
	default:
		return nil, fmt.Errorf("unknown transport %q", t)
	}
}

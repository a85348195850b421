package main

import (
	"github.com/urfave/cli"

	"github.com/nearfield/beacon"
	"github.com/nearfield/beacon/darwin"
)

func defaultRadio(c *cli.Context) (beacon.Radio, error) {
	return darwin.NewRadio()
}

//go:build darwin
// +build darwin

package darwin

import (
	"os/exec"
	"strconv"
	"strings"
)

var darwinOSVersion int

func getDarwinReleaseVersion() int {
	version, err := exec.Command("uname", "-r").Output()
	if err != nil {
		return 0
	}
	v, _ := strconv.Atoi(strings.Split(string(version), ".")[0])
	return v
}

// xpc message IDs are OS X version specific, so they are resolved into a
// map at startup instead of hard constants.
const (
	cmdInit = iota
	cmdAdvertiseStart
	cmdAdvertiseStop
	evtStateChanged
	evtAdvertisingStarted
	evtAdvertisingStopped
)

var xpcID map[int]int

func initXpcIDs() {
	darwinOSVersion = getDarwinReleaseVersion()

	xpcID = make(map[int]int)

	xpcID[cmdInit] = 1
	xpcID[cmdAdvertiseStart] = 8
	xpcID[cmdAdvertiseStop] = 9

	if darwinOSVersion < 17 {
		// yosemite through sierra
		xpcID[evtStateChanged] = 4
	} else {
		// high sierra and later
		xpcID[evtStateChanged] = 6
	}
	xpcID[evtAdvertisingStarted] = 16
	xpcID[evtAdvertisingStopped] = 17
}

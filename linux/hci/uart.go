//go:build linux
// +build linux

package hci

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

const defaultBaudRate = 115200

// NewUART opens an H4 UART transport on the given serial device.
// A zero baud rate selects 115200.
func NewUART(path string, baudRate uint) (io.ReadWriteCloser, error) {
	if baudRate == 0 {
		baudRate = defaultBaudRate
	}

	sp, err := serial.Open(serial.OpenOptions{
		PortName:              path,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return sp, nil
}

// NewUARTRadio opens an H4 UART transport and wraps it in a Radio.
func NewUARTRadio(path string, baudRate uint) (*Radio, error) {
	sp, err := NewUART(path, baudRate)
	if err != nil {
		return nil, err
	}
	return NewRadio(sp)
}

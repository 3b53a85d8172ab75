// Package device provides the byte-oriented transports the monitor polls
package device

import (
	"errors"
	"fmt"
	"os"
)

// ReadCommand asks the device for one readout of all sensors
var ReadCommand = []byte{'r'}

// Device is a request/response transport to the multi-sensor board
type Device interface {
	// Write sends a command to the device
	Write(cmd []byte) error

	// ReadLines blocks until the device response is complete and returns
	// every line received, newline included
	ReadLines() ([][]byte, error)

	// Close releases the underlying port
	Close() error
}

// Opener opens a device by address. Open is the production implementation.
type Opener func(address string, baud int) (Device, error)

// ErrNotExist is wrapped by ConnectionError when the serial path is missing
var ErrNotExist = errors.New("serial device does not exist")

// ConnectionError reports a device that could not be opened
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Open returns the simulated device for "dummy" and a serial port otherwise
func Open(address string, baud int) (Device, error) {
	if address == DummyAddress {
		return NewDummy(), nil
	}

	if _, err := os.Stat(address); err != nil {
		return nil, &ConnectionError{Address: address, Err: ErrNotExist}
	}

	dev, err := OpenSerial(address, baud)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}
	return dev, nil
}

package acquisition

import "errors"

// State is the poll lifecycle: Idle -> Measuring -> Received -> Idle
type State int

const (
	Idle State = iota
	Measuring
	Received
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Measuring:
		return "measuring"
	case Received:
		return "received"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected rejects a poll request while no device is open
	ErrNotConnected = errors.New("not connected to serial device")

	// ErrBusy rejects a poll request while a previous poll is unfinished
	ErrBusy = errors.New("serial worker is busy")

	// ErrNotReceived means there is no completed poll to collect
	ErrNotReceived = errors.New("no response pending")

	// ErrEmptyResponse means the device returned zero lines
	ErrEmptyResponse = errors.New("no response received")
)

// Response is the raw result of one poll cycle
type Response struct {
	// Issued is the request time in seconds since the epoch
	Issued float64
	Lines  [][]byte
	// Err is the device error that cut the response short, if any
	Err error
}

package acquisition

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pv/htmon/internal/device"
)

// Status describes the machine for display
type Status struct {
	Address    string    `json:"address"`
	Connected  bool      `json:"connected"`
	State      string    `json:"state"`
	LastIssued time.Time `json:"lastIssued"`
	Dispatched uint64    `json:"dispatched"`
}

// Machine owns the poll lifecycle. The foreground calls RequestMeasurement
// and OnWorkerSignal; each accepted request runs the blocking device I/O on
// its own goroutine, which publishes the raw lines and signals completion.
// All state lives behind one mutex and a new worker is only dispatched from
// Idle, so at most one worker is outstanding.
type Machine struct {
	open   device.Opener
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	connected  bool
	address    string
	dev        device.Device
	issued     time.Time
	lines      [][]byte
	readErr    error
	dispatched uint64

	signals chan struct{}
	wg      sync.WaitGroup
}

// New creates a disconnected machine. open is used by Connect.
func New(open device.Opener, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		open:    open,
		now:     time.Now,
		logger:  logger.With("component", "acquisition"),
		signals: make(chan struct{}, 1),
	}
}

// SetClock replaces the clock used to stamp requests
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Signals delivers one value per completed poll
func (m *Machine) Signals() <-chan struct{} {
	return m.signals
}

// Connect opens the device. On failure the poll state is left untouched,
// the previous device is closed, the machine is marked disconnected and a
// *device.ConnectionError is returned.
func (m *Machine) Connect(address string, baud int) error {
	dev, err := m.open(address, baud)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.connected = false
		m.closeDeviceLocked()
		m.logger.Warn("could not connect to serial device", "address", address, "error", err)
		var connErr *device.ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return &device.ConnectionError{Address: address, Err: err}
	}

	m.closeDeviceLocked()
	m.dev = dev
	m.address = address
	m.connected = true
	m.logger.Info("connected to serial device", "address", address, "baud", baud)
	return nil
}

// closeDeviceLocked closes the current device, if any. A worker in flight
// keeps its own reference.
func (m *Machine) closeDeviceLocked() {
	if m.dev == nil {
		return
	}
	if err := m.dev.Close(); err != nil {
		m.logger.Warn("close previous device failed", "address", m.address, "error", err)
	}
	m.dev = nil
}

// Disconnect closes the device. A worker already in flight keeps its own
// reference and finishes on its own.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected && m.dev == nil {
		return nil
	}

	m.connected = false
	dev := m.dev
	m.dev = nil

	m.logger.Info("disconnected from serial device", "address", m.address)
	if dev != nil {
		if err := dev.Close(); err != nil {
			return fmt.Errorf("close device: %w", err)
		}
	}
	return nil
}

// RequestMeasurement dispatches one worker if the machine is connected and
// Idle. Otherwise it logs and returns ErrNotConnected or ErrBusy.
func (m *Machine) RequestMeasurement() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected || m.dev == nil {
		m.logger.Warn("measurement requested while not connected")
		return ErrNotConnected
	}
	if m.state != Idle {
		m.logger.Warn("measurement requested while serial worker is busy", "state", m.state)
		return ErrBusy
	}

	m.issued = m.now()
	m.state = Measuring
	m.dispatched++

	m.wg.Add(1)
	go m.work(m.dev)

	return nil
}

func (m *Machine) work(dev device.Device) {
	defer m.wg.Done()

	var lines [][]byte
	err := dev.Write(device.ReadCommand)
	if err == nil {
		lines, err = dev.ReadLines()
	}

	m.mu.Lock()
	m.lines = lines
	m.readErr = err
	m.state = Received
	m.mu.Unlock()

	select {
	case m.signals <- struct{}{}:
	default:
		// A stale signal is still queued; the foreground checks the state
	}
}

// OnWorkerSignal collects a completed poll and returns the machine to Idle.
// It returns ErrNotReceived when no poll has completed and ErrEmptyResponse
// when the device returned nothing.
func (m *Machine) OnWorkerSignal() (Response, error) {
	m.mu.Lock()
	if m.state != Received {
		m.mu.Unlock()
		return Response{}, ErrNotReceived
	}

	resp := Response{
		Issued: float64(m.issued.UnixNano()) / 1e9,
		Lines:  m.lines,
		Err:    m.readErr,
	}
	m.lines = nil
	m.readErr = nil
	m.state = Idle
	m.mu.Unlock()

	if resp.Err != nil {
		m.logger.Warn("device read failed", "error", resp.Err)
	}
	if len(resp.Lines) == 0 {
		m.logger.Warn("no response received")
		return resp, ErrEmptyResponse
	}

	m.logger.Debug("serial response", "lines", len(resp.Lines))
	return resp, nil
}

// State returns the current poll state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Address:    m.address,
		Connected:  m.connected,
		State:      m.state.String(),
		LastIssued: m.issued,
		Dispatched: m.dispatched,
	}
}

// Wait blocks until every dispatched worker has returned
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Package monitor runs the foreground of a monitoring session: it drives the
// acquisition machine from a poll ticker, stores and persists what the device
// returns, and serialises every user command onto one goroutine.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pv/htmon/internal/acquisition"
	"github.com/pv/htmon/internal/config"
	"github.com/pv/htmon/internal/device"
	"github.com/pv/htmon/internal/events"
	"github.com/pv/htmon/internal/metrics"
	"github.com/pv/htmon/internal/parser"
	"github.com/pv/htmon/internal/plot"
	"github.com/pv/htmon/internal/recording"
	"github.com/pv/htmon/internal/storage"
)

// RotateInterval is how often output files are closed and reopened
const RotateInterval = 600 * time.Second

// Notifier shows a warning to the user
type Notifier func(title, text string)

// ErrRunning is returned by Run when the loop is already running
var ErrRunning = errors.New("session is already running")

type Options struct {
	// Open opens the device; device.Open when nil
	Open             device.Opener
	Location         *time.Location
	PollInterval     time.Duration
	RotateInterval   time.Duration
	SnapshotInterval time.Duration
	// MetricsFile is rewritten after every rotation when set
	MetricsFile string
	Notify      Notifier
	Logger      *slog.Logger
}

// Session owns the store, the output files and the timers. Tickers fire and
// commands run only on the Run goroutine, or inline while Run is not active.
type Session struct {
	machine  *acquisition.Machine
	store    *storage.Store
	events   *events.Log
	writer   *recording.Writer
	renderer *plot.Renderer
	metrics  *metrics.Metrics

	notify      Notifier
	logger      *slog.Logger
	metricsFile string

	pollInterval     time.Duration
	rotateInterval   time.Duration
	snapshotInterval time.Duration

	cmds chan func()

	mu      sync.Mutex
	running bool
	stopped chan struct{}

	// exec serialises handlers; everything below is only touched under it
	exec           sync.Mutex
	pollTicker     *time.Ticker
	rotateTicker   *time.Ticker
	snapshotTicker *time.Ticker
	lastFlush      time.Time
	lastError      string
}

func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := opts.Open
	if open == nil {
		open = device.Open
	}

	s := &Session{
		machine:          acquisition.New(open, logger),
		store:            storage.NewStore(),
		events:           events.NewLog(opts.Location),
		writer:           recording.NewWriter(logger),
		renderer:         plot.NewRenderer(logger),
		metrics:          metrics.New(),
		notify:           opts.Notify,
		logger:           logger.With("component", "monitor"),
		metricsFile:      opts.MetricsFile,
		pollInterval:     opts.PollInterval,
		rotateInterval:   opts.RotateInterval,
		snapshotInterval: opts.SnapshotInterval,
		cmds:             make(chan func()),
	}

	if s.pollInterval <= 0 {
		s.pollInterval = config.DefaultPollInterval
	}
	if s.rotateInterval <= 0 {
		s.rotateInterval = RotateInterval
	}
	if s.snapshotInterval <= 0 {
		s.snapshotInterval = config.DefaultSnapshotInterval
	}
	if s.notify == nil {
		s.notify = func(title, text string) {
			s.logger.Warn(text, "title", title)
		}
	}
	return s
}

// Run processes timers, completed polls and commands until ctx is done
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.stopped)
		s.mu.Unlock()
	}()

	s.logger.Info("session started")
	for {
		s.exec.Lock()
		pollC := tickC(s.pollTicker)
		rotateC := tickC(s.rotateTicker)
		snapshotC := tickC(s.snapshotTicker)
		s.exec.Unlock()

		select {
		case <-ctx.Done():
			s.logger.Info("session stopped")
			return nil
		case <-pollC:
			s.run(func() { _ = s.requestMeasurement() })
		case <-s.machine.Signals():
			s.run(s.collect)
		case <-rotateC:
			s.run(func() { _ = s.rotate() })
		case <-snapshotC:
			s.run(func() { _ = s.snapshot() })
		case fn := <-s.cmds:
			s.run(fn)
		}
	}
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (s *Session) run(fn func()) {
	s.exec.Lock()
	defer s.exec.Unlock()
	fn()
}

// do runs fn on the Run goroutine and waits for it. Without a running loop
// fn runs on the caller's goroutine.
func (s *Session) do(fn func()) {
	s.mu.Lock()
	running, stopped := s.running, s.stopped
	s.mu.Unlock()

	if running {
		done := make(chan struct{})
		select {
		case s.cmds <- func() { defer close(done); fn() }:
			<-done
			return
		case <-stopped:
		}
	}
	s.run(fn)
}

// Connect opens the device at address. A failure is reported to the user
// and leaves the session disconnected. On success the history of the
// previous connection is dropped and polling starts.
func (s *Session) Connect(address string, baud int) error {
	var err error
	s.do(func() { err = s.connect(address, baud) })
	return err
}

func (s *Session) connect(address string, baud int) error {
	if err := s.machine.Connect(address, baud); err != nil {
		s.stopPolling()
		s.notify("ERROR!", err.Error())
		return err
	}

	s.store.Clear()
	s.writer.Reset()
	s.metrics.SetSensors(0)

	s.startPolling()
	return nil
}

func (s *Session) startPolling() {
	if s.pollTicker == nil {
		s.pollTicker = time.NewTicker(s.pollInterval)
		return
	}
	s.pollTicker.Reset(s.pollInterval)
}

func (s *Session) stopPolling() {
	if s.pollTicker != nil {
		s.pollTicker.Stop()
		s.pollTicker = nil
	}
}

func (s *Session) Disconnect() error {
	var err error
	s.do(func() {
		s.stopPolling()
		err = s.machine.Disconnect()
	})
	return err
}

// RequestMeasurement asks the device for one poll now
func (s *Session) RequestMeasurement() error {
	var err error
	s.do(func() { err = s.requestMeasurement() })
	return err
}

func (s *Session) requestMeasurement() error {
	s.metrics.PollsRequested.Inc()
	if err := s.machine.RequestMeasurement(); err != nil {
		s.metrics.PollsRejected.Inc()
		return err
	}
	s.metrics.PollsDispatched.Inc()
	return nil
}

// collect handles a completed poll: parse, append, then flush when an
// output directory is selected
func (s *Session) collect() {
	resp, err := s.machine.OnWorkerSignal()
	if err != nil {
		if errors.Is(err, acquisition.ErrEmptyResponse) {
			s.metrics.PollsEmpty.Inc()
		}
		return
	}

	readings := parser.Parse(resp.Lines, resp.Issued)
	if len(readings) == 0 {
		s.logger.Warn("response contained no readings", "lines", len(resp.Lines))
		return
	}

	s.store.AppendAll(readings)
	s.metrics.Observe(readings)
	s.metrics.SetSensors(len(s.store.Sensors()))

	if s.writer.OutputDir() != "" {
		_ = s.flush()
	}
}

func (s *Session) flush() error {
	res, err := s.writer.Flush(s.store, s.events)
	s.metrics.RowsFlushed.Add(res.Rows)
	if err != nil {
		s.metrics.FlushErrors.Inc()
		s.fail("flush failed", err)
		return err
	}
	s.lastFlush = time.Now()
	return nil
}

func (s *Session) rotate() error {
	if err := s.writer.Rotate(); err != nil {
		s.metrics.FlushErrors.Inc()
		s.fail("rotate failed", err)
		return err
	}
	s.metrics.Rotations.Inc()

	if s.metricsFile != "" {
		if err := s.metrics.WriteFile(s.metricsFile); err != nil {
			s.logger.Error("write metrics file failed", "path", s.metricsFile, "error", err)
		}
	}
	return nil
}

func (s *Session) snapshot() error {
	dir := s.writer.OutputDir()
	if dir == "" {
		return recording.ErrNoOutputDir
	}
	if err := s.renderer.Render(dir, s.store, s.events); err != nil {
		s.fail("plot snapshot failed", err)
		return err
	}
	s.metrics.Snapshots.Inc()
	return nil
}

func (s *Session) fail(msg string, err error) {
	s.lastError = err.Error()
	s.logger.Error(msg, "error", err)
}

// SetPollInterval changes the poll period. Values below the minimum are
// raised to it and the user is warned.
func (s *Session) SetPollInterval(seconds int) error {
	var err error
	s.do(func() {
		if !s.machine.Connected() {
			s.notify("ERROR!", "Not connected to serial device")
			err = acquisition.ErrNotConnected
			return
		}

		d, clamped := config.ClampPollInterval(seconds)
		if clamped {
			s.notify("ERROR!", fmt.Sprintf("Update interval is too small, using %d s", int(d/time.Second)))
		}
		s.pollInterval = d
		s.startPolling()
		s.logger.Info("poll interval changed", "interval", d)
	})
	return err
}

// SelectOutput switches persistence to dir, creating it if needed. The full
// history is written to fresh files there and the rotation and snapshot
// timers start.
func (s *Session) SelectOutput(dir string) error {
	var err error
	s.do(func() { err = s.selectOutput(dir) })
	return err
}

func (s *Session) selectOutput(dir string) error {
	if dir == "" {
		s.notify("ERROR!", "No output directory selected")
		return recording.ErrNoOutputDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.notify("ERROR!", fmt.Sprintf("Cannot use output directory: %v", err))
		return fmt.Errorf("create output dir: %w", err)
	}

	res, err := s.writer.SetOutputDir(dir, s.store, s.events)
	s.metrics.RowsFlushed.Add(res.Rows)
	if err != nil {
		s.metrics.FlushErrors.Inc()
		s.fail("flush failed", err)
	} else {
		s.lastFlush = time.Now()
		err = s.rotate()
	}

	s.resetTicker(&s.rotateTicker, s.rotateInterval)
	s.resetTicker(&s.snapshotTicker, s.snapshotInterval)
	_ = s.snapshot()
	return err
}

func (s *Session) resetTicker(t **time.Ticker, d time.Duration) {
	if *t == nil {
		*t = time.NewTicker(d)
		return
	}
	(*t).Reset(d)
}

// SaveNow flushes, rotates and renders the plots immediately
func (s *Session) SaveNow() error {
	var err error
	s.do(func() {
		if s.writer.OutputDir() == "" {
			s.notify("ERROR!", "No output directory selected")
			err = recording.ErrNoOutputDir
			return
		}
		if err = s.flush(); err != nil {
			return
		}
		if err = s.rotate(); err != nil {
			return
		}
		err = s.snapshot()
	})
	return err
}

// AddEvent records a user event. timeText uses events.TimeLayout.
func (s *Session) AddEvent(timeText, name, description string) error {
	var err error
	s.do(func() {
		if err = s.events.Add(timeText, name, description); err != nil {
			s.notify("ERROR!", err.Error())
		}
	})
	return err
}

func (s *Session) RemoveEvents(indices ...int) error {
	var err error
	s.do(func() {
		if err = s.events.Remove(indices...); err != nil {
			s.notify("ERROR!", err.Error())
		}
	})
	return err
}

// Events returns a copy of the event list
func (s *Session) Events() []events.Event {
	return s.events.Events()
}

// FormatEventTime renders an event time in the session timezone
func (s *Session) FormatEventTime(e events.Event) string {
	return s.events.FormatTime(e)
}

func (s *Session) Status() Status {
	var st Status
	s.do(func() {
		st = Status{
			Device:       s.machine.Status(),
			PollInterval: s.pollInterval,
			OutputDir:    s.writer.OutputDir(),
			Events:       s.events.Len(),
			LastFlush:    s.lastFlush,
			LastError:    s.lastError,
		}
		for _, id := range s.store.Sensors() {
			latest, _ := s.store.Latest(id)
			st.Sensors = append(st.Sensors, SensorStatus{
				ID:       id,
				Readings: s.store.Len(id),
				Written:  s.writer.Cursor(id),
				Latest:   latest,
			})
		}
	})
	return st
}

// Close stops the timers, disconnects, waits for an in-flight poll and
// writes out whatever is still pending. Call it after Run has returned.
func (s *Session) Close() error {
	var errs []error
	s.do(func() {
		s.stopPolling()
		for _, t := range []**time.Ticker{&s.rotateTicker, &s.snapshotTicker} {
			if *t != nil {
				(*t).Stop()
				*t = nil
			}
		}
		if err := s.machine.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	})

	s.machine.Wait()

	s.do(func() {
		// A poll finished while shutting down
		s.collect()

		if s.writer.OutputDir() != "" {
			if err := s.flush(); err != nil {
				errs = append(errs, err)
			}
			if err := s.snapshot(); err != nil {
				errs = append(errs, err)
			}
			if s.metricsFile != "" {
				if err := s.metrics.WriteFile(s.metricsFile); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if err := s.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

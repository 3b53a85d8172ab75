// Package metrics counts acquisition and persistence activity and exposes it
// as a Prometheus textfile
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/pv/htmon/internal/storage"
)

// Metrics holds a private set so several sessions (and tests) do not share
// counters
type Metrics struct {
	set *vm.Set

	PollsRequested  *vm.Counter
	PollsRejected   *vm.Counter
	PollsDispatched *vm.Counter
	PollsEmpty      *vm.Counter
	Readings        *vm.Counter
	RowsFlushed     *vm.Counter
	FlushErrors     *vm.Counter
	Rotations       *vm.Counter
	Snapshots       *vm.Counter

	sensors *vm.Gauge
}

func New() *Metrics {
	s := vm.NewSet()
	return &Metrics{
		set:             s,
		PollsRequested:  s.NewCounter("htmon_polls_requested_total"),
		PollsRejected:   s.NewCounter("htmon_polls_rejected_total"),
		PollsDispatched: s.NewCounter("htmon_polls_dispatched_total"),
		PollsEmpty:      s.NewCounter("htmon_polls_empty_total"),
		Readings:        s.NewCounter("htmon_readings_total"),
		RowsFlushed:     s.NewCounter("htmon_rows_flushed_total"),
		FlushErrors:     s.NewCounter("htmon_flush_errors_total"),
		Rotations:       s.NewCounter("htmon_rotations_total"),
		Snapshots:       s.NewCounter("htmon_snapshots_total"),
		sensors:         s.NewGauge("htmon_sensors", nil),
	}
}

// SetSensors records how many sensors the store currently holds
func (m *Metrics) SetSensors(n int) {
	m.sensors.Set(float64(n))
}

// Observe records one parsed poll: the reading count, the latest value per
// sensor and the value distributions
func (m *Metrics) Observe(readings []storage.Reading) {
	m.Readings.Add(len(readings))
	for _, r := range readings {
		m.set.GetOrCreateGauge(labelled("htmon_temperature_celsius", r.Sensor), nil).Set(r.T)
		m.set.GetOrCreateGauge(labelled("htmon_humidity_percent", r.Sensor), nil).Set(r.RH)
		m.set.GetOrCreateHistogram(labelled("htmon_temperature_celsius_distribution", r.Sensor)).Update(r.T)
		m.set.GetOrCreateHistogram(labelled("htmon_humidity_percent_distribution", r.Sensor)).Update(r.RH)
	}
}

func labelled(name, sensor string) string {
	return fmt.Sprintf("%s{sensor=%q}", name, sensor)
}

// WritePrometheus writes every metric in text exposition format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// WriteFile replaces path with the current exposition. The content goes to
// a temporary file in the same directory first and is renamed into place,
// so readers never see a partial file.
func (m *Metrics) WriteFile(path string) error {
	var buf bytes.Buffer
	m.WritePrometheus(&buf)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}

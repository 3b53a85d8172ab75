package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pv/htmon/internal/storage"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.PollsRequested.Inc()
	m.PollsRequested.Inc()
	m.PollsRejected.Inc()
	m.RowsFlushed.Add(7)
	m.SetSensors(3)

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		"htmon_polls_requested_total 2",
		"htmon_polls_rejected_total 1",
		"htmon_rows_flushed_total 7",
		"htmon_sensors 3",
		"htmon_flush_errors_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.Observe([]storage.Reading{
		{Sensor: "0", T: 21.5, RH: 40, Time: 1},
		{Sensor: "1", T: 19, RH: 55.25, Time: 1},
	})

	if got := m.Readings.Get(); got != 2 {
		t.Errorf("expected 2 readings counted, got %d", got)
	}

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`htmon_temperature_celsius{sensor="0"} 21.5`,
		`htmon_humidity_percent{sensor="1"} 55.25`,
		`htmon_temperature_celsius_distribution_bucket{sensor="0"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestMetrics_SetsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Rotations.Inc()

	if b.Rotations.Get() != 0 {
		t.Error("expected separate counters per instance")
	}
}

func TestMetrics_WriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "htmon.prom")

	m := New()
	m.Snapshots.Inc()

	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	m.Snapshots.Inc()
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("second WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), "htmon_snapshots_total 2") {
		t.Errorf("expected updated counter, got:\n%s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the metrics file, found %d entries", len(entries))
	}
}

func TestMetrics_WriteFileMissingDir(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "missing", "htmon.prom")

	if err := m.WriteFile(path); err == nil {
		t.Error("expected error for missing directory")
	}
}

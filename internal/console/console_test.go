package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pv/htmon/internal/acquisition"
	"github.com/pv/htmon/internal/events"
	"github.com/pv/htmon/internal/monitor"
)

type fakeController struct {
	calls  []string
	err    error
	events []events.Event
	status monitor.Status
}

func (f *fakeController) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeController) Connect(address string, baud int) error {
	return f.record("connect %s %d", address, baud)
}
func (f *fakeController) Disconnect() error         { return f.record("disconnect") }
func (f *fakeController) RequestMeasurement() error { return f.record("poll") }
func (f *fakeController) SetPollInterval(seconds int) error {
	return f.record("interval %d", seconds)
}
func (f *fakeController) SelectOutput(dir string) error { return f.record("output %s", dir) }
func (f *fakeController) SaveNow() error                { return f.record("save") }
func (f *fakeController) AddEvent(timeText, name, description string) error {
	return f.record("event %s|%s|%s", timeText, name, description)
}
func (f *fakeController) RemoveEvents(indices ...int) error {
	return f.record("remove %v", indices)
}
func (f *fakeController) Events() []events.Event { return f.events }
func (f *fakeController) FormatEventTime(e events.Event) string {
	return time.Unix(int64(e.Time), 0).UTC().Format(events.TimeLayout)
}
func (f *fakeController) Status() monitor.Status { return f.status }

func createTestConsole(t *testing.T) (*Console, *fakeController, *bytes.Buffer) {
	t.Helper()

	ctl := &fakeController{}
	var out bytes.Buffer
	return New(ctl, &out, 115200), ctl, &out
}

func TestExecute_Dispatch(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"connect /dev/ttyACM0", "connect /dev/ttyACM0 115200"},
		{"connect dummy 9600", "connect dummy 9600"},
		{"CONNECT dummy", "connect dummy 115200"},
		{"disconnect", "disconnect"},
		{"poll", "poll"},
		{"update", "poll"},
		{"interval 30", "interval 30"},
		{"output /tmp/run 1", "output /tmp/run 1"},
		{"save", "save"},
		{"event 2024-01-01 10:00:00 | door opened | north side", "event 2024-01-01 10:00:00|door opened|north side"},
		{"event 2024-01-01 10:00:00|start", "event 2024-01-01 10:00:00|start|"},
		{"event 2024-01-01 10:00:00 | a | b | c", "event 2024-01-01 10:00:00|a|b | c"},
		{"remove 2 0 1", "remove [2 0 1]"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, ctl, out := createTestConsole(t)

			if err := c.Execute(tt.line); err != nil {
				t.Fatalf("Execute returned %v", err)
			}
			if len(ctl.calls) != 1 || ctl.calls[0] != tt.want {
				t.Errorf("expected call %q, got %v", tt.want, ctl.calls)
			}
			if !strings.Contains(out.String(), "ok") {
				t.Errorf("expected ok, got %q", out.String())
			}
		})
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	tests := []string{
		"connect",
		"connect a b c",
		"connect dummy fast",
		"connect dummy -1",
		"interval",
		"interval ten",
		"output",
		"event 2024-01-01 10:00:00",
		"event 2024-01-01 10:00:00 |  | desc",
		"remove",
		"remove x",
	}

	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			c, ctl, out := createTestConsole(t)

			if err := c.Execute(line); err != nil {
				t.Fatalf("Execute returned %v", err)
			}
			if len(ctl.calls) != 0 {
				t.Errorf("expected no controller call, got %v", ctl.calls)
			}
			if !strings.HasPrefix(out.String(), "error:") {
				t.Errorf("expected error output, got %q", out.String())
			}
		})
	}
}

func TestExecute_ControllerError(t *testing.T) {
	c, ctl, out := createTestConsole(t)
	ctl.err = acquisition.ErrBusy

	c.Execute("poll")
	if !strings.Contains(out.String(), "error: "+acquisition.ErrBusy.Error()) {
		t.Errorf("expected controller error printed, got %q", out.String())
	}
}

func TestExecute_UnknownAndBlank(t *testing.T) {
	c, ctl, out := createTestConsole(t)

	c.Execute("")
	c.Execute("   ")
	c.Execute("# comment")
	if out.Len() != 0 {
		t.Errorf("expected no output for blank lines, got %q", out.String())
	}

	c.Execute("frobnicate")
	if !strings.Contains(out.String(), "unknown command") || !strings.Contains(out.String(), "Commands:") {
		t.Errorf("expected usage for unknown command, got %q", out.String())
	}
	if len(ctl.calls) != 0 {
		t.Errorf("expected no calls, got %v", ctl.calls)
	}
}

func TestExecute_Quit(t *testing.T) {
	c, _, _ := createTestConsole(t)

	if err := c.Execute("quit"); !errors.Is(err, ErrQuit) {
		t.Errorf("expected ErrQuit, got %v", err)
	}
}

func TestExecute_ListEvents(t *testing.T) {
	c, ctl, out := createTestConsole(t)

	c.Execute("events")
	if !strings.Contains(out.String(), "no events") {
		t.Errorf("expected empty listing, got %q", out.String())
	}

	out.Reset()
	ctl.events = []events.Event{
		{Time: 1704103200, Name: "start"},
		{Time: 1704106800, Name: "door", Description: "north"},
	}
	c.Execute("events")

	got := out.String()
	for _, want := range []string{"  0  2024-01-01 10:00:00  start\n", "  1  2024-01-01 11:00:00  door  (north)\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestExecute_Status(t *testing.T) {
	c, ctl, out := createTestConsole(t)
	ctl.status = monitor.Status{
		Device:       acquisition.Status{Address: "dummy", Connected: true, State: "idle", Dispatched: 3},
		PollInterval: 10 * time.Second,
		Events:       1,
		Sensors: []monitor.SensorStatus{
			{ID: "0", Readings: 3, Written: 2},
		},
	}

	c.Execute("status")
	got := out.String()
	for _, want := range []string{
		"dummy (connected, idle), 3 polls",
		"interval: 10s",
		"output:   none",
		"sensor 0: 3 readings, 2 written",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestRun_StopsAtQuitAndEOF(t *testing.T) {
	c, ctl, _ := createTestConsole(t)

	in := strings.NewReader("poll\nquit\nsave\n")
	if err := c.Run(context.Background(), in); !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
	if len(ctl.calls) != 1 || ctl.calls[0] != "poll" {
		t.Errorf("expected only poll before quit, got %v", ctl.calls)
	}

	ctl.calls = nil
	if err := c.Run(context.Background(), strings.NewReader("save\ndisconnect")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(ctl.calls) != 2 {
		t.Errorf("expected 2 calls before EOF, got %v", ctl.calls)
	}
}

func TestNotify(t *testing.T) {
	c, _, out := createTestConsole(t)

	c.Notify("ERROR!", "No output directory selected")
	if out.String() != "ERROR! No output directory selected\n" {
		t.Errorf("unexpected notice %q", out.String())
	}
}

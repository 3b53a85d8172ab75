package parser

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/pv/htmon/internal/storage"
)

func TestParse_TwoSensors(t *testing.T) {
	lines := [][]byte{[]byte("0:T=21.50C,RH=40.00%;1:T=22.10C,RH=41.20%\n")}

	got := Parse(lines, 1000.0)

	want := []storage.Reading{
		{Sensor: "0", T: 21.50, RH: 40.00, Time: 1000.0},
		{Sensor: "1", T: 22.10, RH: 41.20, Time: 1000.0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d readings, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reading %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantIDs []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \r\n", nil},
		{"single field", "3:T=20.00C,RH=50.00%", []string{"3"}},
		{"lowercase keywords", "3:t=20.00c,rh=50.00%", []string{"3"}},
		{"crlf terminated", "0:T=1.00C,RH=2.00%\r\n", []string{"0"}},
		{"textual id", "lab-north:T=19.2C,RH=44%", []string{"lab-north"}},
		{"negative temperature", "out:T=-4.25C,RH=80.1%", []string{"out"}},
		{"integer values", "0:T=21C,RH=40%", []string{"0"}},
		{"garbage field skipped", "0:T=21.0C,RH=40.0%;garbage;1:T=22.0C,RH=41.0%", []string{"0", "1"}},
		{"missing percent", "0:T=21.0C,RH=40.0", nil},
		{"missing id", ":T=21.0C,RH=40.0%", nil},
		{"non-numeric value", "0:T=abcC,RH=40.0%", nil},
		{"trailing separator", "0:T=21.0C,RH=40.0%;", []string{"0"}},
		{"error message from board", "ERR sensor 2 timeout", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLine(tt.line, 5)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d readings, got %d: %+v", len(tt.wantIDs), len(got), got)
			}
			for i, id := range tt.wantIDs {
				if got[i].Sensor != id {
					t.Errorf("reading %d: expected sensor %q, got %q", i, id, got[i].Sensor)
				}
				if got[i].Time != 5 {
					t.Errorf("reading %d: expected issue time 5, got %v", i, got[i].Time)
				}
			}
		})
	}
}

func TestParse_CapturedGroupsExact(t *testing.T) {
	ids := []string{"0", "17", "probe_A", "x y"}
	temps := []float64{-40, 0, 21.37, 85.5}
	hums := []float64{0, 12.5, 99.99, 100}

	for _, id := range ids {
		for _, temp := range temps {
			for _, rh := range hums {
				line := fmt.Sprintf("%s:T=%sC,RH=%s%%", id,
					strconv.FormatFloat(temp, 'f', -1, 64),
					strconv.FormatFloat(rh, 'f', -1, 64))

				got := ParseLine(line, 1)
				if len(got) != 1 {
					t.Fatalf("%q: expected 1 reading, got %d", line, len(got))
				}
				if got[0].Sensor != id || got[0].T != temp || got[0].RH != rh {
					t.Errorf("%q: got %+v", line, got[0])
				}
			}
		}
	}
}

func TestParse_MultipleLinesKeepOrder(t *testing.T) {
	lines := [][]byte{
		[]byte("b:T=1C,RH=1%\n"),
		[]byte("not a reading\n"),
		[]byte("a:T=2C,RH=2%;c:T=3C,RH=3%\n"),
	}

	got := Parse(lines, 7)
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	order := []string{"b", "a", "c"}
	for i := range order {
		if got[i].Sensor != order[i] {
			t.Errorf("position %d: expected %q, got %q", i, order[i], got[i].Sensor)
		}
	}
}

func TestParse_NoMatches(t *testing.T) {
	if got := Parse(nil, 1); len(got) != 0 {
		t.Errorf("expected no readings for nil input, got %d", len(got))
	}
	if got := Parse([][]byte{[]byte("hello\n")}, 1); len(got) != 0 {
		t.Errorf("expected no readings for garbage, got %d", len(got))
	}
}

func TestParse_TwoDecimalRoundTrip(t *testing.T) {
	values := []float64{21.499, 40.005, -3.14159, 99.994, 0.001}

	for _, v := range values {
		line := fmt.Sprintf("0:T=%.2fC,RH=%.2f%%", v, math.Abs(v))
		got := ParseLine(line, 0)
		if len(got) != 1 {
			t.Fatalf("%q: expected 1 reading", line)
		}
		if math.Abs(got[0].T-v) > 0.005 {
			t.Errorf("T round-trip of %v gave %v", v, got[0].T)
		}
		if math.Abs(got[0].RH-math.Abs(v)) > 0.005 {
			t.Errorf("RH round-trip of %v gave %v", math.Abs(v), got[0].RH)
		}
	}
}

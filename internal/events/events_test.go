package events

import (
	"errors"
	"testing"
	"time"
)

func TestLog_AddParsesLayout(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	l := NewLog(loc)

	if err := l.Add("2024-01-01 10:00:00", "calibration start", ""); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	events := l.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	want := float64(time.Date(2024, 1, 1, 10, 0, 0, 0, loc).Unix())
	if events[0].Time != want {
		t.Errorf("expected time %v, got %v", want, events[0].Time)
	}
	// 10:00 at UTC+2 is 08:00 UTC
	if want != float64(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC).Unix()) {
		t.Error("timezone not applied")
	}
	if got := l.FormatTime(events[0]); got != "2024-01-01 10:00:00" {
		t.Errorf("expected formatted time to round-trip, got %q", got)
	}
}

func TestLog_AddRejectsBadTime(t *testing.T) {
	l := NewLog(time.UTC)

	tests := []string{
		"",
		"2024-01-01",
		"01.01.2024 10:00:00",
		"2024-01-01T10:00:00",
		"2024-13-01 10:00:00",
	}

	for _, in := range tests {
		err := l.Add(in, "x", "")
		if err == nil {
			t.Errorf("expected error for %q", in)
			continue
		}
		var tfe *TimeFormatError
		if !errors.As(err, &tfe) {
			t.Errorf("expected *TimeFormatError for %q, got %T", in, err)
		}
	}

	if l.Len() != 0 {
		t.Errorf("expected no events after failed adds, got %d", l.Len())
	}
	if l.Version() != 0 {
		t.Errorf("expected version unchanged, got %d", l.Version())
	}
}

func addNamed(t *testing.T, l *Log, names ...string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range names {
		l.AddAt(base.Add(time.Duration(i)*time.Minute), n, "")
	}
}

func names(events []Event) []string {
	result := make([]string, len(events))
	for i, e := range events {
		result[i] = e.Name
	}
	return result
}

func TestLog_Remove(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		want    []string
	}{
		{"single", []int{1}, []string{"a", "c", "d", "e"}},
		{"ascending", []int{0, 2, 4}, []string{"b", "d"}},
		{"descending", []int{4, 2, 0}, []string{"b", "d"}},
		{"unordered", []int{3, 0, 1}, []string{"c", "e"}},
		{"duplicates", []int{2, 2}, []string{"a", "b", "d", "e"}},
		{"all", []int{0, 1, 2, 3, 4}, []string{}},
		{"none", nil, []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLog(time.UTC)
			addNamed(t, l, "a", "b", "c", "d", "e")

			if err := l.Remove(tt.indices...); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}

			got := names(l.Events())
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestLog_RemoveOutOfRange(t *testing.T) {
	l := NewLog(time.UTC)
	addNamed(t, l, "a", "b")
	before := l.Version()

	err := l.Remove(0, 5)
	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *IndexError, got %v", err)
	}
	if ie.Index != 5 {
		t.Errorf("expected index 5 reported, got %d", ie.Index)
	}

	if l.Len() != 2 {
		t.Errorf("expected nothing removed, got %d events", l.Len())
	}
	if l.Version() != before {
		t.Error("version changed on rejected removal")
	}

	if err := l.Remove(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestLog_VersionBumpsOnMutation(t *testing.T) {
	l := NewLog(nil)

	v0 := l.Version()
	l.AddAt(time.Now(), "a", "")
	v1 := l.Version()
	if v1 == v0 {
		t.Error("expected version bump after AddAt")
	}

	if err := l.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if l.Version() == v1 {
		t.Error("expected version bump after Remove")
	}
}

func TestLog_EventsReturnsCopy(t *testing.T) {
	l := NewLog(time.UTC)
	addNamed(t, l, "a")

	events := l.Events()
	events[0].Name = "changed"

	if l.Events()[0].Name != "a" {
		t.Error("log mutated through returned slice")
	}
}

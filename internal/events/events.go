// Package events keeps the user-entered annotations of a monitoring session
package events

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TimeLayout is the display format event times are entered in
// (yyyy-MM-dd HH:mm:ss)
const TimeLayout = "2006-01-02 15:04:05"

// Event is a timestamped annotation. Time is seconds since the epoch.
type Event struct {
	Time        float64 `json:"time"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

// TimeFormatError reports an event time that does not match TimeLayout
type TimeFormatError struct {
	Value string
	Err   error
}

func (e *TimeFormatError) Error() string {
	return fmt.Sprintf("event time %q is not in %q format: %v", e.Value, TimeLayout, e.Err)
}

func (e *TimeFormatError) Unwrap() error {
	return e.Err
}

// IndexError reports a removal index outside the list
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("event index %d out of range [0, %d)", e.Index, e.Len)
}

// Log is the ordered list of events. Every mutation bumps Version so that
// cached overlays can be invalidated.
type Log struct {
	mu      sync.RWMutex
	loc     *time.Location
	events  []Event
	version uint64
}

// NewLog creates an empty log interpreting event times in loc
func NewLog(loc *time.Location) *Log {
	if loc == nil {
		loc = time.Local
	}
	return &Log{loc: loc}
}

// Add parses timeText with TimeLayout and appends the event
func (l *Log) Add(timeText, name, description string) error {
	t, err := time.ParseInLocation(TimeLayout, timeText, l.loc)
	if err != nil {
		return &TimeFormatError{Value: timeText, Err: err}
	}

	l.AddAt(t, name, description)
	return nil
}

// AddAt appends an event at t
func (l *Log) AddAt(t time.Time, name, description string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, Event{
		Time:        float64(t.Unix()),
		Name:        name,
		Description: description,
	})
	l.version++
}

// Remove deletes the events at the given indices. Indices are removed in
// descending order so earlier removals do not shift later ones. Duplicate
// indices count once; any out-of-range index rejects the whole call.
func (l *Log) Remove(indices ...int) error {
	if len(indices) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	unique := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(l.events) {
			return &IndexError{Index: i, Len: len(l.events)}
		}
		unique[i] = struct{}{}
	}

	sorted := make([]int, 0, len(unique))
	for i := range unique {
		sorted = append(sorted, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	for _, i := range sorted {
		l.events = append(l.events[:i], l.events[i+1:]...)
	}
	l.version++
	return nil
}

// Events returns a copy of the list
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Event, len(l.events))
	copy(result, l.events)
	return result
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Version changes on every mutation
func (l *Log) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Location returns the timezone event times are parsed in
func (l *Log) Location() *time.Location {
	return l.loc
}

// FormatTime renders an event time back in TimeLayout
func (l *Log) FormatTime(e Event) string {
	return time.Unix(int64(e.Time), 0).In(l.loc).Format(TimeLayout)
}

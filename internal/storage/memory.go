package storage

import (
	"sync"
)

// Store keeps per-sensor histories in memory. Series are created on first
// use, never removed during a session and iterated in first-seen order.
type Store struct {
	mu     sync.RWMutex
	order  []string
	series map[string][]Reading
}

var _ SeriesReader = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		series: make(map[string][]Reading),
	}
}

// Append adds a reading to its sensor's series
func (s *Store) Append(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(r)
}

// AppendAll adds the readings of one poll atomically
func (s *Store) AppendAll(readings []Reading) {
	if len(readings) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		s.appendLocked(r)
	}
}

func (s *Store) appendLocked(r Reading) {
	points, ok := s.series[r.Sensor]
	if !ok {
		s.order = append(s.order, r.Sensor)
	}
	s.series[r.Sensor] = append(points, r)
}

// Clear drops every series
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.series = make(map[string][]Reading)
}

func (s *Store) Sensors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, len(s.order))
	copy(result, s.order)
	return result
}

func (s *Store) Len(sensor string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[sensor])
}

// Count returns the total number of readings across all sensors
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, points := range s.series {
		total += len(points)
	}
	return total
}

// Series returns a copy of a sensor's history
func (s *Store) Series(sensor string) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[sensor]
	result := make([]Reading, len(points))
	copy(result, points)
	return result
}

func (s *Store) Range(sensor string, from, to int) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[sensor]
	if to > len(points) {
		to = len(points)
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		return nil
	}

	result := make([]Reading, to-from)
	copy(result, points[from:to])
	return result
}

// Latest returns the most recent reading of a sensor
func (s *Store) Latest(sensor string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[sensor]
	if len(points) == 0 {
		return Reading{}, false
	}
	return points[len(points)-1], true
}

func (s *Store) Snapshot() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Snapshot, 0, len(s.order))
	for _, sensor := range s.order {
		points := s.series[sensor]
		readings := make([]Reading, len(points))
		copy(readings, points)
		result = append(result, Snapshot{Sensor: sensor, Readings: readings})
	}
	return result
}

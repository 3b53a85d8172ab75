package storage

// Reading is one sensor readout. Time is seconds since the epoch.
type Reading struct {
	Sensor string  `json:"sensor"`
	T      float64 `json:"t"`
	RH     float64 `json:"rh"`
	Time   float64 `json:"time"`
}

// Snapshot is a copy of one sensor's history
type Snapshot struct {
	Sensor   string    `json:"sensor"`
	Readings []Reading `json:"readings"`
}

// SeriesReader is the read side of the store used by persistence and plotting
type SeriesReader interface {
	// Sensors returns sensor IDs in first-seen order
	Sensors() []string

	// Len returns the number of readings stored for a sensor
	Len(sensor string) int

	// Range returns a copy of readings [from, to) for a sensor
	Range(sensor string, from, to int) []Reading

	// Snapshot returns a copy of every series in first-seen order
	Snapshot() []Snapshot
}

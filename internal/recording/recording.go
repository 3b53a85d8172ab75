// Package recording persists sensor series and events as flat CSV files
package recording

import (
	"errors"
	"strconv"
	"strings"

	"github.com/pv/htmon/internal/events"
	"github.com/pv/htmon/internal/storage"
)

const (
	// EventsFile is rewritten in full on every flush
	EventsFile = "events.csv"

	sensorFilePrefix = "sensor_"
	csvSuffix        = ".csv"
)

var (
	SensorHeader = []string{"time", "T", "RH"}
	EventsHeader = []string{"time", "name", "description"}
)

// ErrNoOutputDir is returned when a flush is requested before an output
// directory has been selected
var ErrNoOutputDir = errors.New("no output directory selected")

// EventSource provides the events written to EventsFile
type EventSource interface {
	Events() []events.Event
}

// FlushResult counts what one flush wrote
type FlushResult struct {
	Rows   int `json:"rows"`
	Events int `json:"events"`
}

// sensorNameEscaper percent-escapes the characters that cannot appear in a
// file name. '%' is escaped too, so distinct IDs never share a file.
var sensorNameEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	`\`, "%5C",
	"\x00", "%00",
)

// SensorFileName returns the CSV file name of a sensor
func SensorFileName(sensor string) string {
	return sensorFilePrefix + sensorNameEscaper.Replace(sensor) + csvSuffix
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sensorRow(r storage.Reading) []string {
	return []string{formatFloat(r.Time), formatFloat(r.T), formatFloat(r.RH)}
}

func eventRow(e events.Event) []string {
	return []string{formatFloat(e.Time), e.Name, e.Description}
}

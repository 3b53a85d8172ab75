// Package parser turns raw device responses into sensor readings
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pv/htmon/internal/storage"
)

// FieldSeparator joins sensor fields within one response line
const FieldSeparator = ";"

// fieldPattern matches "<id>:T=<float>C,RH=<float>%". Keywords are
// case-insensitive; the ID is any text without ':' or ';'.
var fieldPattern = regexp.MustCompile(
	`(?i)^\s*([^:;\s][^:;]*?)\s*:\s*T=([-+]?\d*\.?\d+)C,RH=([-+]?\d*\.?\d+)%\s*$`,
)

// Pattern returns the expression a single field must match
func Pattern() *regexp.Regexp {
	return fieldPattern
}

// Parse extracts every well-formed field of a response. All readings carry
// the issue time of the request that produced the response.
func Parse(lines [][]byte, issued float64) []storage.Reading {
	var readings []storage.Reading
	for _, line := range lines {
		readings = append(readings, ParseLine(string(line), issued)...)
	}
	return readings
}

// ParseLine extracts the readings of one response line
func ParseLine(line string, issued float64) []storage.Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var readings []storage.Reading
	for _, field := range strings.Split(line, FieldSeparator) {
		r, ok := parseField(field, issued)
		if !ok {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

func parseField(field string, issued float64) (storage.Reading, bool) {
	m := fieldPattern.FindStringSubmatch(field)
	if m == nil {
		return storage.Reading{}, false
	}

	t, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return storage.Reading{}, false
	}
	rh, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return storage.Reading{}, false
	}

	return storage.Reading{
		Sensor: m[1],
		T:      t,
		RH:     rh,
		Time:   issued,
	}, true
}

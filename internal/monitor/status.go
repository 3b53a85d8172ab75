package monitor

import (
	"time"

	"github.com/pv/htmon/internal/acquisition"
	"github.com/pv/htmon/internal/storage"
)

// Status is the session state shown by the console
type Status struct {
	Device       acquisition.Status `json:"device"`
	PollInterval time.Duration      `json:"pollInterval"`
	OutputDir    string             `json:"outputDir,omitempty"`
	Sensors      []SensorStatus     `json:"sensors"`
	Events       int                `json:"events"`
	LastFlush    time.Time          `json:"lastFlush"`
	LastError    string             `json:"lastError,omitempty"`
}

// SensorStatus summarises one series
type SensorStatus struct {
	ID       string          `json:"id"`
	Readings int             `json:"readings"`
	Written  int             `json:"written"`
	Latest   storage.Reading `json:"latest"`
}

// Package plot renders temperature and humidity snapshots of the store
package plot

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/pv/htmon/internal/events"
	"github.com/pv/htmon/internal/storage"
)

const (
	TemperatureFile = "plot_temperature"
	HumidityFile    = "plot_humidity"

	minutesAfter = 180.0
	hoursAfter   = 10800.0
)

// Formats are written for every snapshot
var Formats = []string{"png", "pdf"}

// EventSource provides the events drawn as vertical markers
type EventSource interface {
	Events() []events.Event
	Version() uint64
}

// TimeScale picks the axis unit for a span in seconds and returns the
// factor converting seconds to that unit
func TimeScale(span float64) (string, float64) {
	switch {
	case span > hoursAfter:
		return "h", 1.0 / 3600.0
	case span > minutesAfter:
		return "min", 1.0 / 60.0
	default:
		return "s", 1.0
	}
}

type overlay struct {
	at    float64
	label string
	color color.Color
}

// Renderer draws one line per sensor and one dashed marker per event. The
// marker list is rebuilt only when the event log version changes.
type Renderer struct {
	Width  vg.Length
	Height vg.Length

	mu       sync.Mutex
	cached   bool
	version  uint64
	overlays []overlay
	builds   int

	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		Width:  8 * vg.Inch,
		Height: 5 * vg.Inch,
		logger: logger.With("component", "plot"),
	}
}

// Render writes both plots into dir in every format. It does nothing when
// the store holds no readings.
func (r *Renderer) Render(dir string, store storage.SeriesReader, src EventSource) error {
	snap := store.Snapshot()
	if len(snap) == 0 {
		return nil
	}

	start, end, ok := timeBounds(snap)
	if !ok {
		return nil
	}
	unit, mult := TimeScale(end - start)

	var marks []overlay
	if src != nil {
		marks = r.markers(src)
	}

	quantities := []struct {
		file  string
		title string
		label string
		value func(storage.Reading) float64
	}{
		{TemperatureFile, "Temperature", "Temperature [C]", func(x storage.Reading) float64 { return x.T }},
		{HumidityFile, "Humidity", "Relative humidity [%]", func(x storage.Reading) float64 { return x.RH }},
	}

	for _, q := range quantities {
		p, err := r.build(snap, marks, start, mult, q.value)
		if err != nil {
			return fmt.Errorf("build %s: %w", q.file, err)
		}
		p.Title.Text = q.title
		p.X.Label.Text = fmt.Sprintf("Time [%s]", unit)
		p.Y.Label.Text = q.label

		for _, ext := range Formats {
			path := filepath.Join(dir, q.file+"."+ext)
			if err := p.Save(r.Width, r.Height, path); err != nil {
				return fmt.Errorf("save %s: %w", path, err)
			}
		}
	}

	r.logger.Debug("plots rendered", "dir", dir, "sensors", len(snap), "events", len(marks))
	return nil
}

func (r *Renderer) build(snap []storage.Snapshot, marks []overlay, start, mult float64, value func(storage.Reading) float64) (*gplot.Plot, error) {
	p := gplot.New()
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range snap {
		xys := make(plotter.XYs, len(s.Readings))
		for j, reading := range s.Readings {
			y := value(reading)
			xys[j].X = (reading.Time - start) * mult
			xys[j].Y = y
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("sensor %s: %w", s.Sensor, err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("Sensor "+s.Sensor, line)
	}

	if len(marks) == 0 {
		return p, nil
	}

	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	p.Y.Min, p.Y.Max = lo, hi

	for _, m := range marks {
		x := (m.at - start) * mult
		line, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", m.label, err)
		}
		line.LineStyle.Color = m.color
		line.LineStyle.Width = vg.Points(1)
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(m.label, line)
	}
	return p, nil
}

// markers returns the cached overlays, rebuilding them after any event log
// mutation. Colors follow event order so both plots agree.
func (r *Renderer) markers(src EventSource) []overlay {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := src.Version()
	if r.cached && r.version == v {
		return r.overlays
	}

	list := src.Events()
	marks := make([]overlay, len(list))
	for i, e := range list {
		marks[i] = overlay{
			at:    e.Time,
			label: e.Name,
			color: plotutil.DarkColors[i%len(plotutil.DarkColors)],
		}
	}

	r.overlays = marks
	r.version = v
	r.cached = true
	r.builds++
	return marks
}

// OverlayBuilds reports how many times the event markers were rebuilt
func (r *Renderer) OverlayBuilds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds
}

func timeBounds(snap []storage.Snapshot) (float64, float64, bool) {
	start, end := math.Inf(1), math.Inf(-1)
	for _, s := range snap {
		for _, reading := range s.Readings {
			start = math.Min(start, reading.Time)
			end = math.Max(end, reading.Time)
		}
	}
	return start, end, !math.IsInf(start, 1)
}

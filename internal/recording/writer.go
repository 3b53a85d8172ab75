package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pv/htmon/internal/storage"
)

type stream struct {
	path   string
	file   *os.File
	cursor int
}

func (s *stream) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Writer emits sensor series incrementally, one CSV file per sensor. Each
// sensor stream keeps a cursor of rows already written, so Flush only
// appends what is new and calling it twice writes nothing the second time.
type Writer struct {
	mu      sync.Mutex
	dir     string
	sensors map[string]*stream
	events  *stream
	logger  *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		sensors: make(map[string]*stream),
		logger:  logger.With("component", "recording"),
	}
}

// OutputDir returns the selected directory, or "" if none
func (w *Writer) OutputDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

// Cursor returns the number of rows already written for a sensor
func (w *Writer) Cursor(sensor string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.sensors[sensor]; ok {
		return s.cursor
	}
	return 0
}

// SetOutputDir switches to dir and re-emits the full history into fresh
// files there
func (w *Writer) SetOutputDir(dir string, store storage.SeriesReader, src EventSource) (FlushResult, error) {
	w.mu.Lock()
	if err := w.closeAllLocked(); err != nil {
		w.logger.Warn("close previous output failed", "dir", w.dir, "error", err)
	}
	w.dir = dir
	w.mu.Unlock()

	w.logger.Info("output directory selected", "dir", dir)
	return w.Flush(store, src)
}

// Flush writes rows added since the previous flush and rewrites the events
// file. Without an output directory it returns ErrNoOutputDir and does no
// I/O. On a write error the failing stream keeps its previous cursor.
func (w *Writer) Flush(store storage.SeriesReader, src EventSource) (FlushResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var result FlushResult
	if w.dir == "" {
		return result, ErrNoOutputDir
	}

	for _, sensor := range store.Sensors() {
		n, err := w.flushSensorLocked(store, sensor)
		result.Rows += n
		if err != nil {
			return result, fmt.Errorf("flush sensor %s: %w", sensor, err)
		}
	}

	if src != nil {
		n, err := w.writeEventsLocked(src)
		if err != nil {
			return result, fmt.Errorf("flush events: %w", err)
		}
		result.Events = n
	}

	if result.Rows > 0 {
		w.logger.Debug("rows flushed", "rows", result.Rows, "events", result.Events)
	}
	return result, nil
}

func (w *Writer) flushSensorLocked(store storage.SeriesReader, sensor string) (int, error) {
	s, ok := w.sensors[sensor]
	if !ok {
		created, err := w.createLocked(SensorFileName(sensor), SensorHeader)
		if err != nil {
			return 0, err
		}
		s = created
		w.sensors[sensor] = s
	} else if s.file == nil {
		// A failed rotation left the stream closed
		if err := reopen(s); err != nil {
			return 0, err
		}
	}

	rows := store.Range(sensor, s.cursor, store.Len(sensor))
	if len(rows) == 0 {
		return 0, nil
	}

	cw := csv.NewWriter(s.file)
	for _, r := range rows {
		if err := cw.Write(sensorRow(r)); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write row: %w", err)
	}

	s.cursor += len(rows)
	return len(rows), nil
}

// createLocked truncates or creates a file and writes its header. It runs
// once per file after SetOutputDir.
func (w *Writer) createLocked(name string, header []string) (*stream, error) {
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &stream{path: path, file: f}, nil
}

func (w *Writer) writeEventsLocked(src EventSource) (int, error) {
	if w.events == nil {
		s, err := w.createLocked(EventsFile, EventsHeader)
		if err != nil {
			return 0, err
		}
		w.events = s
	} else {
		if w.events.file == nil {
			if err := reopen(w.events); err != nil {
				return 0, err
			}
		}
		if err := w.events.file.Truncate(0); err != nil {
			return 0, fmt.Errorf("truncate %s: %w", w.events.path, err)
		}
		if _, err := w.events.file.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek %s: %w", w.events.path, err)
		}

		cw := csv.NewWriter(w.events.file)
		if err := cw.Write(EventsHeader); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	list := src.Events()
	cw := csv.NewWriter(w.events.file)
	for _, e := range list {
		if err := cw.Write(eventRow(e)); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write row: %w", err)
	}

	w.events.cursor = len(list)
	return len(list), nil
}

// Rotate syncs, closes and reopens every stream in append mode. Rows
// already written are never written again.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dir == "" {
		return ErrNoOutputDir
	}

	var errs []error
	for _, s := range w.streamsLocked() {
		if err := reopen(s); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}

	w.logger.Debug("output streams rotated", "streams", len(w.sensors))
	return nil
}

func reopen(s *stream) error {
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", s.path, err)
		}
		if err := s.close(); err != nil {
			return fmt.Errorf("close %s: %w", s.path, err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

func (w *Writer) streamsLocked() []*stream {
	result := make([]*stream, 0, len(w.sensors)+1)
	for _, s := range w.sensors {
		result = append(result, s)
	}
	if w.events != nil {
		result = append(result, w.events)
	}
	return result
}

// Reset moves every cursor back to 0 after the store was cleared. Streams stay
// open, so the next flush appends the new series after the rows already on
// disk. Only SetOutputDir starts fresh files.
func (w *Writer) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range w.streamsLocked() {
		s.cursor = 0
	}
}

func (w *Writer) closeAllLocked() error {
	var errs []error
	for _, s := range w.streamsLocked() {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.path, err))
		}
	}
	w.sensors = make(map[string]*stream)
	w.events = nil
	return errors.Join(errs...)
}

// Close releases every open file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeAllLocked()
}

// Package summary writes scalar metrics as TensorBoard event files.
package summary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var fileSeq atomic.Uint64

// Writer appends events to a single event file in logDir. Scalars written
// through AddScalars go to child writers, one per key, in sibling
// directories named <logDir>/<mainTag>_<key>
type Writer struct {
	mu       sync.Mutex
	logDir   string
	path     string
	file     *os.File
	buf      *bufio.Writer
	children map[string]*Writer
	closed   bool
	now      func() time.Time
}

// NewWriter creates logDir if needed and opens a fresh event file in it
func NewWriter(logDir string) (*Writer, error) {
	return newWriter(logDir, time.Now)
}

func newWriter(logDir string, now func() time.Time) (*Writer, error) {
	if logDir == "" {
		return nil, fmt.Errorf("log directory cannot be empty")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%010d.%s.%d.%d", now().Unix(), host, os.Getpid(), fileSeq.Add(1))
	path := filepath.Join(logDir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}

	w := &Writer{
		logDir:   logDir,
		path:     path,
		file:     file,
		buf:      bufio.NewWriter(file),
		children: make(map[string]*Writer),
		now:      now,
	}

	if err := w.write(Event{WallTime: w.wallTime(), FileVersion: fileVersion}); err != nil {
		file.Close()
		return nil, err
	}
	if err := w.buf.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write event file header: %w", err)
	}
	return w, nil
}

// LogDir returns the directory this writer writes to
func (w *Writer) LogDir() string {
	return w.logDir
}

// Path returns the event file path
func (w *Writer) Path() string {
	return w.path
}

// AddScalar records value under tag at step
func (w *Writer) AddScalar(tag string, value float64, step int64) error {
	if tag == "" {
		return fmt.Errorf("scalar tag cannot be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("summary writer is closed")
	}
	return w.write(Event{
		WallTime: w.wallTime(),
		Step:     step,
		Values:   []Value{{Tag: tag, SimpleValue: float32(value)}},
	})
}

// AddScalars records several related scalars under mainTag at step so they
// share one chart. Keys are written in sorted order
func (w *Writer) AddScalars(mainTag string, values map[string]float64, step int64) error {
	if mainTag == "" {
		return fmt.Errorf("scalar tag cannot be empty")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		child, err := w.child(strings.ReplaceAll(mainTag, "/", "_") + "_" + key)
		if err != nil {
			return err
		}
		if err := child.AddScalar(mainTag, values[key], step); err != nil {
			return fmt.Errorf("failed to write scalar %s/%s: %w", mainTag, key, err)
		}
	}
	return nil
}

func (w *Writer) child(dir string) (*Writer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("summary writer is closed")
	}
	if c, ok := w.children[dir]; ok {
		return c, nil
	}
	c, err := newWriter(filepath.Join(w.logDir, dir), w.now)
	if err != nil {
		return nil, err
	}
	w.children[dir] = c
	return c, nil
}

// Flush writes buffered events of this writer and all child writers to disk
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	var errs []error
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush %s: %w", w.path, err))
	}
	for _, c := range w.children {
		if err := c.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes this writer and all child writers
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, c := range w.children {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close %s: %w", w.path, err))
	}
	return errors.Join(errs...)
}

func (w *Writer) write(e Event) error {
	if err := writeRecord(w.buf, e.marshal()); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (w *Writer) wallTime() float64 {
	return float64(w.now().UnixNano()) / 1e9
}

// ReadEvents decodes every event in an event file
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var events []Event
	for {
		data, err := readRecord(r)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s (record %d): %w", path, len(events), err)
		}

		e, err := unmarshalEvent(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s (record %d): %w", path, len(events), err)
		}
		events = append(events, e)
	}
}

// EventFiles lists the event files directly inside dir, oldest name first
func EventFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "events.out.tfevents.*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

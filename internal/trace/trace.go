// Package trace writes the per-packet buffer occupancy of a run.
package trace

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/zsiec/vrx/internal/capture"
)

// Sample is the occupancy after one packet.
type Sample struct {
	Index     int
	Record    capture.Record
	Occupancy int
	// Underrun is the pre-clamp occupancy when the packet underran the
	// buffer, zero otherwise.
	Underrun int
}

// Sink receives samples in packet order.
type Sink interface {
	Write(s Sample) error
	Close() error
}

// NewlineWriter writes one decimal occupancy per line.
type NewlineWriter struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewNewlineWriter writes to w. Close flushes but does not close w.
func NewNewlineWriter(w io.Writer) *NewlineWriter {
	return &NewlineWriter{w: bufio.NewWriter(w)}
}

// CreateNewline creates or truncates path.
func CreateNewline(path string) (*NewlineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	return &NewlineWriter{w: bufio.NewWriter(f), closer: f}, nil
}

func (n *NewlineWriter) Write(s Sample) error {
	var buf [24]byte
	b := strconv.AppendInt(buf[:0], int64(s.Occupancy), 10)
	b = append(b, '\n')
	_, err := n.w.Write(b)
	return err
}

func (n *NewlineWriter) Close() error {
	err := n.w.Flush()
	if n.closer != nil {
		if cerr := n.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var csvHeader = []string{"index", "capture_time", "sequence", "rtp_timestamp", "marker", "occupancy", "underrun"}

// CSVWriter writes samples with their packet metadata as CSV.
type CSVWriter struct {
	w       *csv.Writer
	closer  io.Closer
	started bool
}

// NewCSVWriter writes to w. Close flushes but does not close w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// CreateCSV creates or truncates path.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv trace: %w", err)
	}
	return &CSVWriter{w: csv.NewWriter(f), closer: f}, nil
}

func (c *CSVWriter) Write(s Sample) error {
	if !c.started {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.started = true
	}

	return c.w.Write([]string{
		strconv.Itoa(s.Index),
		s.Record.CaptureTime.UTC().Format(time.RFC3339Nano),
		strconv.FormatUint(uint64(s.Record.SequenceNumber), 10),
		strconv.FormatUint(uint64(s.Record.Timestamp), 10),
		strconv.FormatBool(s.Record.Marker),
		strconv.Itoa(s.Occupancy),
		strconv.Itoa(s.Underrun),
	})
}

func (c *CSVWriter) Close() error {
	if !c.started {
		// an empty run still gets a header
		_ = c.w.Write(csvHeader)
	}
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// MultiSink fans samples out to several sinks.
type MultiSink []Sink

func (m MultiSink) Write(s Sample) error {
	for _, sink := range m {
		if err := sink.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m MultiSink) Close() error {
	var first error
	for _, sink := range m {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteSamples writes bare occupancies to w, one per line.
func WriteSamples(w io.Writer, samples []int) error {
	nw := NewNewlineWriter(w)
	for i, v := range samples {
		if err := nw.Write(Sample{Index: i, Occupancy: v}); err != nil {
			return err
		}
	}
	return nw.Close()
}

package capture

import (
	"io"
	"net"
	"time"
)

// Record is one observed RTP packet. Records are produced once by a
// Reader and never mutated afterwards.
type Record struct {
	// CaptureTime is when the packet was seen on the wire.
	CaptureTime time.Time
	// SequenceNumber is the 16-bit wrapping RTP sequence number.
	SequenceNumber uint16
	// Timestamp is the 32-bit wrapping RTP media timestamp (90 kHz for video).
	Timestamp uint32
	// Marker is set on the last packet of a video frame or field.
	Marker bool

	// Informational only; the simulation never reads these.
	SSRC        uint32
	PayloadType uint8
	Destination net.IP
}

// Reader yields records in capture order. Next returns io.EOF once the
// sequence is exhausted.
type Reader interface {
	Next() (Record, error)
	Close() error
}

// Source is a replayable record sequence. Every Open starts again from
// the first record, so geometry estimation and simulation can each make
// their own pass.
type Source interface {
	Open() (Reader, error)
	// Name identifies the source in logs and reports.
	Name() string
}

// SliceSource serves records held in memory.
type SliceSource struct {
	name    string
	records []Record
}

// NewSliceSource creates a source over records. The slice is not copied.
func NewSliceSource(name string, records []Record) *SliceSource {
	return &SliceSource{name: name, records: records}
}

// Open implements Source
func (s *SliceSource) Open() (Reader, error) {
	return NewSliceReader(s.records), nil
}

// Name implements Source
func (s *SliceSource) Name() string {
	return s.name
}

// SliceReader walks a slice of records.
type SliceReader struct {
	records []Record
	pos     int
}

// NewSliceReader creates a reader over records.
func NewSliceReader(records []Record) *SliceReader {
	return &SliceReader{records: records}
}

// Next implements Reader
func (r *SliceReader) Next() (Record, error) {
	if r.pos >= len(r.records) {
		return Record{}, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

// Close implements Reader
func (r *SliceReader) Close() error {
	return nil
}

// ReadAll drains r into a slice.
func ReadAll(r Reader) ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// Package report summarizes an analysis run for people and for storage.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/vrx/pkg/version"
)

// Report is the outcome of one analysis run.
type Report struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	CaptureFile string `json:"capture_file"`
	Filter      string `json:"filter"`

	PacketsPerFrame int `json:"packets_per_frame"`
	// FrameRate is exact, e.g. "60000/1001".
	FrameRate string `json:"frame_rate"`
	// FrameFrequency is FrameRate rounded to two decimals.
	FrameFrequency string `json:"frame_frequency"`

	Packets        int `json:"packets"`
	MaxOccupancy   int `json:"max_occupancy"`
	Underruns      int `json:"underruns"`
	WorstUnderrun  int `json:"worst_underrun,omitempty"`
	FirstUnderrun  int `json:"first_underrun_index"`
	DoubleFinishes int `json:"double_finishes"`
	FramesOpened   int `json:"frames_opened"`
	FramesDrained  int `json:"frames_drained"`

	// Records the decoder rejected
	NonRTP   int `json:"non_rtp"`
	Filtered int `json:"filtered"`

	TracePath string `json:"trace_path,omitempty"`
	CSVPath   string `json:"csv_path,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Version    string        `json:"version"`
}

// New creates an empty report with a fresh ID.
func New(runID string) *Report {
	return &Report{
		ID:            uuid.New().String(),
		RunID:         runID,
		FirstUnderrun: -1,
		Version:       version.GetInfo().Version,
	}
}

// AddUnderrun accounts for one underrun at packet index with the given
// pre-clamp value.
func (r *Report) AddUnderrun(index, value int) {
	if r.Underruns == 0 {
		r.FirstUnderrun = index
	}
	r.Underruns++
	if value < r.WorstUnderrun {
		r.WorstUnderrun = value
	}
}

// Compliant reports whether the stream never underran the buffer.
func (r *Report) Compliant() bool {
	return r.Underruns == 0
}

// WriteJSON writes r as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

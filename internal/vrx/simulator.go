package vrx

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gammazero/deque"

	"github.com/zsiec/vrx/internal/capture"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/geometry"
	"github.com/zsiec/vrx/internal/logger"
	"github.com/zsiec/vrx/internal/timing"
)

// cancelCheckInterval is how many records RunReader processes between
// context checks.
const cancelCheckInterval = 1024

// Params configures a simulation run.
type Params struct {
	PacketsPerFrame int
	// FramePeriod is the nominal frame duration in seconds.
	FramePeriod timing.Rational
	// ReadSpacing is TRS in seconds.
	ReadSpacing timing.Rational
	// ReadStartOffset is TRO in seconds. Zero selects FramePeriod*43/1125.
	ReadStartOffset timing.Rational
	// LeapSeconds is the UTC to TAI offset used for alignment points.
	LeapSeconds int64
}

// NewParams derives simulation parameters from an estimated geometry
// using the default 1080-line ratios and leap second count.
func NewParams(g geometry.FrameGeometry) Params {
	return Params{
		PacketsPerFrame: g.PacketsPerFrame,
		FramePeriod:     g.FramePeriod,
		ReadSpacing:     g.ReadSpacing(geometry.DefaultActiveRatio),
		ReadStartOffset: g.ReadStartOffset(geometry.DefaultReadOffsetRatio),
		LeapSeconds:     timing.DefaultLeapSeconds,
	}
}

// Validate reports GeometryUnavailable for parameters the model cannot run with.
func (p Params) Validate() error {
	switch {
	case p.PacketsPerFrame <= 0:
		return apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("packets per frame must be positive, got %d", p.PacketsPerFrame))
	case p.FramePeriod.Sign() <= 0:
		return apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("frame period must be positive, got %s", p.FramePeriod))
	case p.ReadSpacing.Sign() <= 0:
		return apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("read spacing must be positive, got %s", p.ReadSpacing))
	case p.ReadStartOffset.Sign() < 0:
		return apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("read start offset must not be negative, got %s", p.ReadStartOffset))
	}
	return nil
}

// UnderrunEvent records a packet at which the buffer would have held a
// negative number of packets.
type UnderrunEvent struct {
	// Index is the position of the packet in the input sequence.
	Index int
	// Value is the occupancy before clamping; always negative.
	Value int
	// CaptureTime is the arrival time of the packet.
	CaptureTime time.Time
}

// Result is the outcome of a full simulation run.
type Result struct {
	// Samples holds the buffer occupancy after each input packet.
	Samples   []int
	Max       int
	Underruns []UnderrunEvent
	// FramesOpened counts frames pushed into the buffer.
	FramesOpened int
	// FramesDrained counts frames read out completely.
	FramesDrained int
	// DoubleFinishes counts packets at which two frames completed draining.
	// Only one extra frame is evaluated per packet, so a third completion
	// in the same tick is deferred to the next packet.
	DoubleFinishes int
}

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger used for per-frame debug output.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// WithUnderrunHandler registers fn to be called for every underrun as it
// happens.
func WithUnderrunHandler(fn func(UnderrunEvent)) Option {
	return func(s *Simulator) {
		s.onUnderrun = fn
	}
}

// WithSampleHandler registers fn to be called with every sample as it is
// produced.
func WithSampleHandler(fn func(index int, rec capture.Record, occupancy int)) Option {
	return func(s *Simulator) {
		s.onSample = fn
	}
}

// Simulator models the occupancy of an ST 2110-21 virtual receive buffer
// packet by packet. A Simulator is a sequential fold and must not be used
// from several goroutines.
type Simulator struct {
	params          Params
	readStartOffset timing.Rational
	clock           timing.AlignmentClock
	tracker         FrameDrainTracker

	frames    deque.Deque[InFlightFrame]
	occupancy int
	index     int
	prev      *capture.Record

	max            int
	underruns      []UnderrunEvent
	framesOpened   int
	framesDrained  int
	doubleFinishes int

	logger     logger.Logger
	onUnderrun func(UnderrunEvent)
	onSample   func(int, capture.Record, int)
}

// NewSimulator creates a simulator for one stream.
func NewSimulator(p Params, opts ...Option) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	offset := p.ReadStartOffset
	if offset.Sign() == 0 {
		offset = p.FramePeriod.Mul(geometry.DefaultReadOffsetRatio)
	}

	s := &Simulator{
		params:          p,
		readStartOffset: offset,
		clock:           timing.NewAlignmentClock(p.LeapSeconds),
		tracker:         NewFrameDrainTracker(p.ReadSpacing, p.PacketsPerFrame),
		logger:          logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Step ingests one record and returns the buffer occupancy right after it.
func (s *Simulator) Step(rec capture.Record) int {
	now := timing.FromTime(rec.CaptureTime)

	if s.prev != nil && s.prev.Marker {
		s.openFrame(now)
	}

	if s.frames.Len() > 0 {
		s.occupancy++
		s.addToTail()

		delta, finished := s.advanceHead(now)
		s.occupancy -= delta
		if finished {
			s.popHead()

			// At most one more frame is evaluated in the same tick.
			if s.frames.Len() > 0 {
				delta, finished = s.advanceHead(now)
				s.occupancy -= delta
				if finished {
					s.popHead()
					s.doubleFinishes++
					s.logger.WithFields(map[string]interface{}{
						"index":        s.index,
						"queued":       s.frames.Len(),
						"capture_time": rec.CaptureTime,
					}).Warn("Two frames finished draining on one packet; further frames are not evaluated until the next packet")
				}
			}
		}

		if s.occupancy < 0 {
			event := UnderrunEvent{Index: s.index, Value: s.occupancy, CaptureTime: rec.CaptureTime}
			s.underruns = append(s.underruns, event)
			if s.onUnderrun != nil {
				s.onUnderrun(event)
			}
			s.occupancy = 0
		}
	}

	sample := s.occupancy
	if sample > s.max {
		s.max = sample
	}
	if s.onSample != nil {
		s.onSample(s.index, rec, sample)
	}

	s.index++
	s.prev = &rec
	return sample
}

func (s *Simulator) openFrame(now timing.Rational) {
	alignment := s.clock.NextAlignmentPoint(now, s.params.FramePeriod)
	s.frames.PushBack(InFlightFrame{
		DrainStart: alignment.Add(s.readStartOffset),
	})
	s.framesOpened++

	s.logger.WithFields(map[string]interface{}{
		"index":     s.index,
		"alignment": alignment.FloatString(9),
		"queued":    s.frames.Len(),
	}).Debug("Frame opened")
}

func (s *Simulator) addToTail() {
	i := s.frames.Len() - 1
	frame := s.frames.At(i)
	frame.Resident++
	s.frames.Set(i, frame)
}

func (s *Simulator) advanceHead(now timing.Rational) (int, bool) {
	frame := s.frames.Front()
	delta, finished := s.tracker.Advance(&frame, now)
	s.frames.Set(0, frame)
	return delta, finished
}

func (s *Simulator) popHead() {
	frame := s.frames.PopFront()
	s.framesDrained++

	s.logger.WithFields(map[string]interface{}{
		"index":    s.index,
		"drained":  frame.Drained,
		"resident": frame.Resident,
	}).Debug("Frame drained")
}

// Occupancy returns the current buffer occupancy.
func (s *Simulator) Occupancy() int {
	return s.occupancy
}

// InFlight returns the number of frames currently queued.
func (s *Simulator) InFlight() int {
	return s.frames.Len()
}

// Result returns the summary of everything stepped so far. Samples is
// left empty; Run and RunReader fill it in.
func (s *Simulator) Result() *Result {
	underruns := make([]UnderrunEvent, len(s.underruns))
	copy(underruns, s.underruns)
	return &Result{
		Max:            s.max,
		Underruns:      underruns,
		FramesOpened:   s.framesOpened,
		FramesDrained:  s.framesDrained,
		DoubleFinishes: s.doubleFinishes,
	}
}

// Run simulates records and returns one occupancy sample per record.
func Run(records []capture.Record, p Params, opts ...Option) (*Result, error) {
	sim, err := NewSimulator(p, opts...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewEmptyInputError("no packets to simulate")
	}

	samples := make([]int, 0, len(records))
	for _, rec := range records {
		samples = append(samples, sim.Step(rec))
	}

	result := sim.Result()
	result.Samples = samples
	return result, nil
}

// RunReader simulates every record r yields. It stops early with a
// Canceled error when ctx is done.
func RunReader(ctx context.Context, r capture.Reader, p Params, opts ...Option) (*Result, error) {
	sim, err := NewSimulator(p, opts...)
	if err != nil {
		return nil, err
	}

	var samples []int
	for {
		if len(samples)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.WrapCanceledError(err)
			}
		}

		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.WrapCaptureError(err, "failed to read records")
		}
		samples = append(samples, sim.Step(rec))
	}

	if len(samples) == 0 {
		return nil, apperrors.NewEmptyInputError("no packets to simulate")
	}

	result := sim.Result()
	result.Samples = samples
	return result, nil
}

// Max returns the largest value in samples, or 0 for none.
func Max(samples []int) int {
	m := 0
	for _, v := range samples {
		if v > m {
			m = v
		}
	}
	return m
}

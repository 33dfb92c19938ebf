package vrx

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/vrx/internal/capture"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/geometry"
	"github.com/zsiec/vrx/internal/timing"
)

// base is a whole second and therefore on a 25 Hz alignment point.
var base = time.Unix(1700000000, 0)

const (
	framePeriod = 40 * time.Millisecond
	readSpacing = 3840 * time.Microsecond
)

func params25(t *testing.T) Params {
	t.Helper()
	g, err := geometry.NewFrameGeometry(10, timing.FrameRate25)
	require.NoError(t, err)
	return NewParams(g)
}

func alignment(k int) time.Time {
	return base.Add(time.Duration(k) * framePeriod)
}

func rec(at time.Time, marker bool) capture.Record {
	return capture.Record{CaptureTime: at, Marker: marker}
}

// leadIn is a marker packet just before the first alignment point so the
// next packet opens a frame.
func leadIn() capture.Record {
	return rec(base.Add(-time.Millisecond), true)
}

// pacedStream sends each frame's packets exactly one read slot apart,
// starting on the frame's alignment point.
func pacedStream(frames int) []capture.Record {
	records := []capture.Record{leadIn()}
	for k := 0; k < frames; k++ {
		for j := 0; j < 10; j++ {
			records = append(records, rec(alignment(k).Add(time.Duration(j)*readSpacing), j == 9))
		}
	}
	return records
}

func TestNewParams(t *testing.T) {
	p := params25(t)

	assert.Equal(t, 10, p.PacketsPerFrame)
	assert.Equal(t, "1/25", p.FramePeriod.String())
	assert.Equal(t, 0, p.ReadSpacing.Cmp(timing.FromDuration(readSpacing)))
	assert.Equal(t, "43/28125", p.ReadStartOffset.String())
	assert.Equal(t, int64(37), p.LeapSeconds)
}

func TestParams_Validate(t *testing.T) {
	valid := Params{
		PacketsPerFrame: 10,
		FramePeriod:     timing.NewRational(1, 25),
		ReadSpacing:     timing.NewRational(12, 3125),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{name: "zero packets", modify: func(p *Params) { p.PacketsPerFrame = 0 }},
		{name: "negative packets", modify: func(p *Params) { p.PacketsPerFrame = -4 }},
		{name: "zero period", modify: func(p *Params) { p.FramePeriod = timing.Rational{} }},
		{name: "zero read spacing", modify: func(p *Params) { p.ReadSpacing = timing.Rational{} }},
		{name: "negative offset", modify: func(p *Params) { p.ReadStartOffset = timing.NewRational(-1, 1000) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrGeometryUnavailable))

			_, err = NewSimulator(p)
			assert.True(t, errors.Is(err, apperrors.ErrGeometryUnavailable))
		})
	}
}

func TestRun_PacedStream(t *testing.T) {
	const frames = 5
	result, err := Run(pacedStream(frames), params25(t))
	require.NoError(t, err)

	expected := []int{0}
	for k := 0; k < frames; k++ {
		expected = append(expected, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	}
	assert.Equal(t, expected, result.Samples)
	assert.Equal(t, 1, result.Max)
	assert.Empty(t, result.Underruns)
	assert.Equal(t, frames, result.FramesOpened)
	assert.Equal(t, frames, result.FramesDrained)
	assert.Zero(t, result.DoubleFinishes)
}

func TestRun_BurstAtFrameStart(t *testing.T) {
	// Nine packets arrive at once, the tenth lands on the last read slot.
	records := []capture.Record{leadIn()}
	for k := 0; k < 3; k++ {
		for j := 0; j < 9; j++ {
			records = append(records, rec(alignment(k), false))
		}
		records = append(records, rec(alignment(k).Add(9*readSpacing), true))
	}

	result, err := Run(records, params25(t))
	require.NoError(t, err)

	expected := []int{0}
	for k := 0; k < 3; k++ {
		expected = append(expected, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0)
	}
	assert.Equal(t, expected, result.Samples)
	assert.Equal(t, 9, result.Max)
	assert.Empty(t, result.Underruns)
}

func TestRun_Underrun(t *testing.T) {
	records := []capture.Record{
		leadIn(),
		rec(base, false),
		rec(base.Add(25*time.Millisecond), false),
	}

	var seen []UnderrunEvent
	result, err := Run(records, params25(t), WithUnderrunHandler(func(e UnderrunEvent) {
		seen = append(seen, e)
	}))
	require.NoError(t, err)

	// 25 ms after the alignment point eight read slots have elapsed against
	// two received packets.
	assert.Equal(t, []int{0, 1, 0}, result.Samples)
	require.Len(t, result.Underruns, 1)
	assert.Equal(t, 2, result.Underruns[0].Index)
	assert.Equal(t, -6, result.Underruns[0].Value)
	assert.True(t, result.Underruns[0].CaptureTime.Equal(records[2].CaptureTime))
	assert.Equal(t, result.Underruns, seen)
	assert.Equal(t, 1, result.Max)
}

func TestRun_DoubleFinish(t *testing.T) {
	records := []capture.Record{
		leadIn(),
		rec(alignment(0), true),
		// opens a frame aligned to the next frame boundary
		rec(alignment(0).Add(time.Nanosecond), true),
		rec(alignment(3), false),
	}

	sim, err := NewSimulator(params25(t))
	require.NoError(t, err)

	var samples []int
	for _, r := range records {
		samples = append(samples, sim.Step(r))
	}

	assert.Equal(t, []int{0, 1, 2, 0}, samples)
	assert.Equal(t, 1, sim.InFlight())

	result := sim.Result()
	assert.Equal(t, 3, result.FramesOpened)
	assert.Equal(t, 2, result.FramesDrained)
	assert.Equal(t, 1, result.DoubleFinishes)
	require.Len(t, result.Underruns, 1)
	assert.Equal(t, -51, result.Underruns[0].Value)
	assert.Equal(t, 2, result.Max)
}

func TestSimulator_NoFrameBeforeFirstMarker(t *testing.T) {
	sim, err := NewSimulator(params25(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, sim.Step(rec(base.Add(time.Duration(i)*time.Millisecond), false)))
	}
	assert.Equal(t, 0, sim.InFlight())
	assert.Equal(t, 0, sim.Occupancy())
}

func TestSimulator_SamplesNeverNegative(t *testing.T) {
	records := []capture.Record{leadIn()}
	for i := 0; i < 200; i++ {
		records = append(records, rec(base.Add(time.Duration(i*i)*time.Millisecond), i%7 == 6))
	}

	result, err := Run(records, params25(t))
	require.NoError(t, err)
	require.Len(t, result.Samples, len(records))

	for i, s := range result.Samples {
		assert.GreaterOrEqual(t, s, 0, "sample %d", i)
	}
	assert.Equal(t, Max(result.Samples), result.Max)
}

func TestSimulator_SampleHandler(t *testing.T) {
	var indexes, values []int
	opt := WithSampleHandler(func(index int, _ capture.Record, occupancy int) {
		indexes = append(indexes, index)
		values = append(values, occupancy)
	})

	result, err := Run(pacedStream(1), params25(t), opt)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, indexes)
	assert.Equal(t, result.Samples, values)
}

func TestSimulator_DefaultReadStartOffset(t *testing.T) {
	p := params25(t)
	explicit, err := Run(pacedStream(2), p)
	require.NoError(t, err)

	p.ReadStartOffset = timing.Rational{}
	defaulted, err := Run(pacedStream(2), p)
	require.NoError(t, err)

	assert.Equal(t, explicit.Samples, defaulted.Samples)
}

func TestRun_EmptyInput(t *testing.T) {
	_, err := Run(nil, params25(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmptyInput))
}

func TestRunReader(t *testing.T) {
	records := pacedStream(3)

	fromSlice, err := Run(records, params25(t))
	require.NoError(t, err)

	fromReader, err := RunReader(context.Background(), capture.NewSliceReader(records), params25(t))
	require.NoError(t, err)

	assert.Equal(t, fromSlice, fromReader)
}

func TestRunReader_EmptyInput(t *testing.T) {
	_, err := RunReader(context.Background(), capture.NewSliceReader(nil), params25(t))
	assert.True(t, errors.Is(err, apperrors.ErrEmptyInput))
}

func TestRunReader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunReader(ctx, capture.NewSliceReader(pacedStream(1)), params25(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCanceled))
	assert.Equal(t, apperrors.ExitCanceled, apperrors.ExitCodeFor(err))
}

type failingReader struct {
	records []capture.Record
}

func (f *failingReader) Next() (capture.Record, error) {
	if len(f.records) == 0 {
		return capture.Record{}, io.ErrUnexpectedEOF
	}
	r := f.records[0]
	f.records = f.records[1:]
	return r, nil
}

func (f *failingReader) Close() error { return nil }

func TestRunReader_ReadError(t *testing.T) {
	_, err := RunReader(context.Background(), &failingReader{records: pacedStream(1)}, params25(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, apperrors.ExitCapture, apperrors.ExitCodeFor(err))
}

func TestMax(t *testing.T) {
	assert.Equal(t, 0, Max(nil))
	assert.Equal(t, 0, Max([]int{0, 0}))
	assert.Equal(t, 7, Max([]int{3, 7, 2}))
}

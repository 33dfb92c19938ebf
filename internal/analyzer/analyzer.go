// Package analyzer runs the two-pass VRX analysis of one capture: a short
// geometry pass followed by a full simulation pass.
package analyzer

import (
	"context"
	"time"

	"github.com/zsiec/vrx/internal/capture"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/geometry"
	"github.com/zsiec/vrx/internal/logger"
	"github.com/zsiec/vrx/internal/metrics"
	"github.com/zsiec/vrx/internal/report"
	"github.com/zsiec/vrx/internal/timing"
	"github.com/zsiec/vrx/internal/trace"
	"github.com/zsiec/vrx/internal/vrx"
)

// statsReader is implemented by readers that count decoder outcomes.
type statsReader interface {
	Stats() capture.ReadStats
}

// filteredSource is implemented by sources that select one stream.
type filteredSource interface {
	Filter() capture.Filter
}

// Outcome is everything a run produced.
type Outcome struct {
	Geometry geometry.FrameGeometry
	Params   vrx.Params
	Result   *vrx.Result
	Report   *report.Report
}

// Analyzer analyzes one capture source.
type Analyzer struct {
	source capture.Source

	activeRatio     timing.Rational
	readOffsetRatio timing.Rational
	leapSeconds     int64

	sink    trace.Sink
	metrics *metrics.RunMetrics
	logger  logger.Logger
	limited *logger.RateLimitedLogger
	runID   string

	logRate  float64
	logBurst int

	now func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithRatios overrides the active and read offset ratios.
func WithRatios(active, readOffset timing.Rational) Option {
	return func(a *Analyzer) {
		a.activeRatio = active
		a.readOffsetRatio = readOffset
	}
}

// WithLeapSeconds sets the UTC to TAI offset.
func WithLeapSeconds(n int64) Option {
	return func(a *Analyzer) {
		a.leapSeconds = n
	}
}

// WithSink streams every occupancy sample to s.
func WithSink(s trace.Sink) Option {
	return func(a *Analyzer) {
		a.sink = s
	}
}

// WithMetrics records the run in m.
func WithMetrics(m *metrics.RunMetrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithUnderrunLogRate throttles the underrun running log to perSecond
// lines with bursts of burst.
func WithUnderrunLogRate(perSecond float64, burst int) Option {
	return func(a *Analyzer) {
		a.logRate = perSecond
		a.logBurst = burst
	}
}

// WithRunID tags the report with runID.
func WithRunID(runID string) Option {
	return func(a *Analyzer) {
		a.runID = runID
	}
}

// New creates an analyzer for source.
func New(source capture.Source, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:          source,
		activeRatio:     geometry.DefaultActiveRatio,
		readOffsetRatio: geometry.DefaultReadOffsetRatio,
		leapSeconds:     timing.DefaultLeapSeconds,
		logger:          logger.NewNullLogger(),
		logRate:         10,
		logBurst:        20,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runID == "" {
		a.runID = logger.NewRunID()
	}
	a.logger = logger.WithComponent(a.logger, "analyzer")
	a.limited = logger.NewRateLimitedLogger(a.logger, a.logRate, a.logBurst)
	return a
}

// Params derives simulation parameters from g using the analyzer's ratios.
func (a *Analyzer) Params(g geometry.FrameGeometry) vrx.Params {
	return vrx.Params{
		PacketsPerFrame: g.PacketsPerFrame,
		FramePeriod:     g.FramePeriod,
		ReadSpacing:     g.ReadSpacing(a.activeRatio),
		ReadStartOffset: g.ReadStartOffset(a.readOffsetRatio),
		LeapSeconds:     a.leapSeconds,
	}
}

// Run performs both passes. Sample and underrun output is streamed while
// the simulation pass runs; the sink is not closed.
func (a *Analyzer) Run(ctx context.Context) (*Outcome, error) {
	started := a.now()
	rep := report.New(a.runID)
	rep.CaptureFile = a.source.Name()
	rep.StartedAt = started
	if fs, ok := a.source.(filteredSource); ok {
		rep.Filter = fs.Filter().String()
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.WrapCanceledError(err)
	}

	g, err := geometry.Estimate(a.source)
	if err != nil {
		return nil, err
	}

	rep.PacketsPerFrame = g.PacketsPerFrame
	rep.FrameRate = g.FrameRate.String()
	rep.FrameFrequency = g.FrameRate.FloatString(2)

	a.logger.WithFields(map[string]interface{}{
		"packets_per_frame": g.PacketsPerFrame,
		"frame_rate":        g.FrameRate.String(),
	}).Info("Stream geometry estimated")

	if a.metrics != nil {
		a.metrics.SetGeometry(g.PacketsPerFrame, g.FrameRate.Float64())
	}

	params := a.Params(g)

	reader, err := a.source.Open()
	if err != nil {
		return nil, apperrors.WrapCaptureError(err, "failed to open "+a.source.Name())
	}
	defer reader.Close()

	var (
		pendingUnderrun int
		sinkErr         error
	)

	onUnderrun := func(e vrx.UnderrunEvent) {
		pendingUnderrun = e.Value
		rep.AddUnderrun(e.Index, e.Value)
		if a.metrics != nil {
			a.metrics.ObserveUnderrun(e.Value)
		}
		a.limited.WarnCategory(logger.CategoryUnderrun, "VRX buffer underrun", map[string]interface{}{
			"value":        e.Value,
			"index":        e.Index,
			"capture_time": e.CaptureTime,
		})
	}

	onSample := func(index int, rec capture.Record, occupancy int) {
		if a.metrics != nil {
			a.metrics.ObserveSample(occupancy)
		}
		if a.sink != nil && sinkErr == nil {
			sinkErr = a.sink.Write(trace.Sample{
				Index:     index,
				Record:    rec,
				Occupancy: occupancy,
				Underrun:  pendingUnderrun,
			})
		}
		pendingUnderrun = 0
	}

	result, err := vrx.RunReader(ctx, reader, params,
		vrx.WithLogger(logger.WithComponent(a.logger, "simulator")),
		vrx.WithUnderrunHandler(onUnderrun),
		vrx.WithSampleHandler(onSample),
	)
	a.limited.Flush()
	if err != nil {
		return nil, err
	}
	if sinkErr != nil {
		return nil, apperrors.WrapOutputError(sinkErr, "failed to write trace")
	}

	if sr, ok := reader.(statsReader); ok {
		stats := sr.Stats()
		rep.NonRTP = int(stats.NonRTP)
		rep.Filtered = int(stats.Filtered)
		if a.metrics != nil {
			a.metrics.RecordCaptureStats(int(stats.Frames), int(stats.Records), int(stats.NonRTP), int(stats.Filtered))
		}
	}

	finished := a.now()
	rep.Packets = len(result.Samples)
	rep.MaxOccupancy = result.Max
	rep.DoubleFinishes = result.DoubleFinishes
	rep.FramesOpened = result.FramesOpened
	rep.FramesDrained = result.FramesDrained
	rep.FinishedAt = finished
	rep.Duration = finished.Sub(started)

	if a.metrics != nil {
		a.metrics.SetResult(result.Max, result.FramesOpened, result.FramesDrained, result.DoubleFinishes)
		a.metrics.Finish(rep.Duration, finished)
	}

	a.logger.WithFields(map[string]interface{}{
		"packets":   rep.Packets,
		"vrx_max":   rep.MaxOccupancy,
		"underruns": rep.Underruns,
		"duration":  rep.Duration.String(),
	}).Info("Analysis complete")

	return &Outcome{
		Geometry: g,
		Params:   params,
		Result:   result,
		Report:   rep,
	}, nil
}

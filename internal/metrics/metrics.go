package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture record outcomes
const (
	OutcomeMatched  = "matched"
	OutcomeNonRTP   = "non_rtp"
	OutcomeFiltered = "filtered"
)

// Frame lifecycle states
const (
	FrameOpened  = "opened"
	FrameDrained = "drained"
)

// RunMetrics collects the metrics of one analysis run in a private
// registry so that every run can be exported as a node_exporter textfile.
type RunMetrics struct {
	registry *prometheus.Registry

	packetsTotal        prometheus.Counter
	framesTotal         *prometheus.CounterVec
	underrunsTotal      prometheus.Counter
	underrunDepth       prometheus.Histogram
	doubleFinishesTotal prometheus.Counter
	occupancy           prometheus.Histogram
	maxOccupancy        prometheus.Gauge
	packetsPerFrame     prometheus.Gauge
	frameRate           prometheus.Gauge
	captureRecords      *prometheus.CounterVec
	captureFrames       prometheus.Counter
	analysisDuration    prometheus.Gauge
	lastRunTimestamp    prometheus.Gauge
	buildInfo           *prometheus.GaugeVec
}

// NewRunMetrics creates the metric set. labels are attached to every
// series, typically the capture file and stream filter.
func NewRunMetrics(namespace string, labels prometheus.Labels) *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,

		packetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "packets_total",
			Help:        "RTP packets fed to the buffer model",
			ConstLabels: labels,
		}),

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frames_total",
			Help:        "Frames opened in and drained from the buffer model",
			ConstLabels: labels,
		}, []string{"state"}),

		underrunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "underruns_total",
			Help:        "Packets at which the buffer occupancy went negative",
			ConstLabels: labels,
		}),

		underrunDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "underrun_depth_packets",
			Help:        "Magnitude of negative occupancy before clamping",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),

		doubleFinishesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "double_finishes_total",
			Help:        "Packets at which two frames completed draining",
			ConstLabels: labels,
		}),

		occupancy: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "buffer_occupancy_packets",
			Help:        "Buffer occupancy sampled after every packet",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 14), // 1 to 8192 packets
		}),

		maxOccupancy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "buffer_max_packets",
			Help:        "Peak buffer occupancy over the run",
			ConstLabels: labels,
		}),

		packetsPerFrame: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "packets_per_frame",
			Help:        "Estimated packets per frame",
			ConstLabels: labels,
		}),

		frameRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "frame_rate_hertz",
			Help:        "Estimated frame rate",
			ConstLabels: labels,
		}),

		captureRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capture_records_total",
			Help:        "UDP datagrams read from the capture by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		captureFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "capture_frames_total",
			Help:        "Link layer frames read from the capture",
			ConstLabels: labels,
		}),

		analysisDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "analysis_duration_seconds",
			Help:        "Wall clock time spent on the run",
			ConstLabels: labels,
		}),

		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the run finished",
			ConstLabels: labels,
		}),

		buildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the analyzer",
		}, []string{"version", "git_commit", "go_version"}),
	}
}

// Registry returns the registry backing the metric set.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSample records one occupancy sample.
func (m *RunMetrics) ObserveSample(occupancy int) {
	m.packetsTotal.Inc()
	m.occupancy.Observe(float64(occupancy))
}

// ObserveUnderrun records an underrun with its pre-clamp value.
func (m *RunMetrics) ObserveUnderrun(value int) {
	m.underrunsTotal.Inc()
	m.underrunDepth.Observe(float64(-value))
}

// SetGeometry records the estimated stream geometry.
func (m *RunMetrics) SetGeometry(packetsPerFrame int, frameRate float64) {
	m.packetsPerFrame.Set(float64(packetsPerFrame))
	m.frameRate.Set(frameRate)
}

// SetResult records the totals of a finished simulation.
func (m *RunMetrics) SetResult(maxOccupancy, framesOpened, framesDrained, doubleFinishes int) {
	m.maxOccupancy.Set(float64(maxOccupancy))
	m.framesTotal.WithLabelValues(FrameOpened).Add(float64(framesOpened))
	m.framesTotal.WithLabelValues(FrameDrained).Add(float64(framesDrained))
	m.doubleFinishesTotal.Add(float64(doubleFinishes))
}

// RecordCaptureStats records the decoder counters of the simulation pass.
func (m *RunMetrics) RecordCaptureStats(frames, records, nonRTP, filtered int) {
	m.captureFrames.Add(float64(frames))
	m.captureRecords.WithLabelValues(OutcomeMatched).Add(float64(records))
	m.captureRecords.WithLabelValues(OutcomeNonRTP).Add(float64(nonRTP))
	m.captureRecords.WithLabelValues(OutcomeFiltered).Add(float64(filtered))
}

// Finish records the run duration and completion time.
func (m *RunMetrics) Finish(duration time.Duration, at time.Time) {
	m.analysisDuration.Set(duration.Seconds())
	m.lastRunTimestamp.Set(float64(at.Unix()))
}

// SetBuildInfo exports build labels as a constant 1 gauge.
func (m *RunMetrics) SetBuildInfo(labels map[string]string) {
	m.buildInfo.With(prometheus.Labels(labels)).Set(1)
}

// WriteTextfile writes every metric in the text exposition format to path.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

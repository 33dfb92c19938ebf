package geometry

import (
	"fmt"

	"github.com/zsiec/vrx/internal/capture"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/timing"
)

// Default ST 2110-21 ratios for 1125-line (1080 active) rasters.
var (
	// DefaultActiveRatio is RACTIVE, the share of the frame period that
	// carries active video.
	DefaultActiveRatio = timing.NewRational(1080, 1125)
	// DefaultReadOffsetRatio scales the frame period to TRO_DEFAULT.
	DefaultReadOffsetRatio = timing.NewRational(43, 1125)
)

// FrameGeometry describes the frame structure of a video RTP stream.
type FrameGeometry struct {
	PacketsPerFrame int
	FrameRate       timing.Rational // Hz
	FramePeriod     timing.Rational // seconds
}

// NewFrameGeometry builds a geometry from a packet count and frame rate.
func NewFrameGeometry(packetsPerFrame int, frameRate timing.Rational) (FrameGeometry, error) {
	if packetsPerFrame <= 0 {
		return FrameGeometry{}, apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("packets per frame must be positive, got %d", packetsPerFrame))
	}
	if frameRate.Sign() <= 0 {
		return FrameGeometry{}, apperrors.NewGeometryUnavailableError(
			fmt.Sprintf("frame rate must be positive, got %s", frameRate))
	}
	return FrameGeometry{
		PacketsPerFrame: packetsPerFrame,
		FrameRate:       frameRate,
		FramePeriod:     frameRate.Invert(),
	}, nil
}

// ReadSpacing returns TRS, the time between two packet reads while a
// frame drains: FramePeriod * activeRatio / PacketsPerFrame.
func (g FrameGeometry) ReadSpacing(activeRatio timing.Rational) timing.Rational {
	return g.FramePeriod.Mul(activeRatio).Quo(timing.FromInt(int64(g.PacketsPerFrame)))
}

// ReadStartOffset returns TRO, the delay from a frame's alignment point
// to the first read: FramePeriod * offsetRatio.
func (g FrameGeometry) ReadStartOffset(offsetRatio timing.Rational) timing.Rational {
	return g.FramePeriod.Mul(offsetRatio)
}

func (g FrameGeometry) String() string {
	return fmt.Sprintf("%d packets/frame @ %s Hz", g.PacketsPerFrame, g.FrameRate.FloatString(2))
}

// Estimate runs both estimators over src. Each estimator makes its own
// pass from the start of the source and stops after the marker packets it
// needs.
func Estimate(src capture.Source) (FrameGeometry, error) {
	packets, err := withReader(src, EstimatePacketsPerFrame)
	if err != nil {
		return FrameGeometry{}, err
	}

	rate, err := withReader(src, EstimateFrameRate)
	if err != nil {
		return FrameGeometry{}, err
	}

	return NewFrameGeometry(packets, rate)
}

func withReader[T any](src capture.Source, fn func(capture.Reader) (T, error)) (T, error) {
	var zero T
	r, err := src.Open()
	if err != nil {
		return zero, apperrors.WrapCaptureError(err, "failed to open "+src.Name())
	}
	defer r.Close()
	return fn(r)
}

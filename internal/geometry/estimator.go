package geometry

import (
	"fmt"
	"io"

	"github.com/zsiec/vrx/internal/capture"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/timing"
)

// nextMarker returns the next marker-flagged record, or io.EOF.
func nextMarker(r capture.Reader) (capture.Record, error) {
	for {
		rec, err := r.Next()
		if err != nil {
			return capture.Record{}, err
		}
		if rec.Marker {
			return rec, nil
		}
	}
}

// collectMarkers reads the first n marker records. It returns fewer than
// n records, without error, when the reader runs out.
func collectMarkers(r capture.Reader, n int) ([]capture.Record, error) {
	markers := make([]capture.Record, 0, n)
	for len(markers) < n {
		rec, err := nextMarker(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return markers, apperrors.WrapCaptureError(err, "failed to read records")
		}
		markers = append(markers, rec)
	}
	return markers, nil
}

// EstimatePacketsPerFrame counts the packets between the first two
// marker packets, modulo the sequence number wrap.
func EstimatePacketsPerFrame(r capture.Reader) (int, error) {
	markers, err := collectMarkers(r, 2)
	if err != nil {
		return 0, err
	}
	if len(markers) < 2 {
		return 0, apperrors.NewInsufficientDataError(
			fmt.Sprintf("need 2 marker packets to measure frame length, found %d", len(markers)))
	}

	return int(sequenceDelta(markers[0].SequenceNumber, markers[1].SequenceNumber)), nil
}

// EstimateFrameRate derives the frame rate in Hz from the RTP timestamps
// of the first three marker packets. Averaging two consecutive deltas
// cancels the 1501/1502 style alternation of drop-frame rates exactly.
func EstimateFrameRate(r capture.Reader) (timing.Rational, error) {
	markers, err := collectMarkers(r, 3)
	if err != nil {
		return timing.Rational{}, err
	}
	if len(markers) < 3 {
		return timing.Rational{}, apperrors.NewInsufficientDataError(
			fmt.Sprintf("need 3 marker packets to measure frame rate, found %d", len(markers)))
	}

	d1 := timestampDelta(markers[0].Timestamp, markers[1].Timestamp)
	d2 := timestampDelta(markers[1].Timestamp, markers[2].Timestamp)
	sum := int64(d1) + int64(d2)
	if sum == 0 {
		return timing.Rational{}, apperrors.NewInsufficientDataError("marker packets share one RTP timestamp")
	}

	// 90000 / ((d1+d2)/2)
	return timing.RTPVideoClock.Mul(timing.FromInt(2)).Quo(timing.FromInt(sum)), nil
}

// sequenceDelta returns (b - a) mod 2^16. Unsigned subtraction wraps.
func sequenceDelta(a, b uint16) uint16 {
	return b - a
}

// timestampDelta returns (b - a) mod 2^32.
func timestampDelta(a, b uint32) uint32 {
	return b - a
}

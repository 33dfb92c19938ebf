package timing

// DefaultLeapSeconds is the TAI-UTC offset in effect since 2017-01-01.
// It is a static value; captures taken across a future leap second need
// an explicit override.
const DefaultLeapSeconds = 37

// dropFrameScalar is the 1001/1000 correction applied to NTSC-family rates.
var dropFrameScalar = NewRational(1001, 1000)

// AlignmentClock locates ST 2110-21 frame alignment points. Alignment
// points are the instants at which a frame period begins when frames are
// counted from the SMPTE epoch in TAI.
type AlignmentClock struct {
	LeapSeconds int64
}

// NewAlignmentClock creates a clock using the given UTC to TAI offset.
func NewAlignmentClock(leapSeconds int64) AlignmentClock {
	return AlignmentClock{LeapSeconds: leapSeconds}
}

// NextAlignmentPoint returns the first alignment point at or after instant.
// instant is a UTC capture time in seconds; framePeriod must be positive.
func (c AlignmentClock) NextAlignmentPoint(instant, framePeriod Rational) Rational {
	rate, scalar := nominalRate(framePeriod)
	leap := FromInt(c.LeapSeconds)

	timeTai := instant.Sub(leap)
	frameIndex := timeTai.Mul(rate).Quo(scalar).Ceil()

	return frameIndex.Mul(scalar).Quo(rate).Add(leap)
}

// nominalRate splits the frame rate implied by framePeriod into its
// integer nominal rate and the scalar (1 or 1001/1000) that relates them.
func nominalRate(framePeriod Rational) (rate, scalar Rational) {
	exact := framePeriod.Invert()
	rate = exact.Round()
	if rate.Cmp(exact) == 0 {
		return rate, FromInt(1)
	}
	return rate, dropFrameScalar
}

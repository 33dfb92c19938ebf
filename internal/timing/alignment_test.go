package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, s string) Rational {
	t.Helper()
	r, err := ParseRational(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return r
}

func TestNominalRate_ScalarBranches(t *testing.T) {
	tests := []struct {
		name       string
		period     Rational
		wantRate   string
		wantScalar string
	}{
		{name: "25 Hz", period: FrameRate25.Invert(), wantRate: "25", wantScalar: "1"},
		{name: "50 Hz", period: FrameRate50.Invert(), wantRate: "50", wantScalar: "1"},
		{name: "29.97 Hz", period: FrameRate29_97.Invert(), wantRate: "30", wantScalar: "1001/1000"},
		{name: "59.94 Hz", period: FrameRate59_94.Invert(), wantRate: "60", wantScalar: "1001/1000"},
		{name: "23.976 Hz", period: FrameRate23_976.Invert(), wantRate: "24", wantScalar: "1001/1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, scalar := nominalRate(tt.period)
			assert.Equal(t, tt.wantRate, rate.String())
			assert.Equal(t, tt.wantScalar, scalar.String())
		})
	}
}

func TestNextAlignmentPoint_IntegerRate(t *testing.T) {
	clock := NewAlignmentClock(DefaultLeapSeconds)
	period := FrameRate25.Invert()

	// 1700000000 - 37 is a whole number of seconds, so it is a 25 Hz boundary
	base := FromInt(1700000000)

	got := clock.NextAlignmentPoint(base.Add(NewRational(1, 100)), period)
	assert.Equal(t, 0, got.Cmp(base.Add(NewRational(1, 25))), "got %s", got)

	got = clock.NextAlignmentPoint(base.Add(NewRational(1, 1_000_000_000)), period)
	assert.Equal(t, 0, got.Cmp(base.Add(period)), "got %s", got)
}

func TestNextAlignmentPoint_DropFrameRate(t *testing.T) {
	clock := NewAlignmentClock(DefaultLeapSeconds)
	period := FrameRate29_97.Invert()

	// 3000 frames of 1001/30000 s after the TAI epoch
	boundary := mustParse(t, "1371/10")
	got := clock.NextAlignmentPoint(boundary, period)
	assert.Equal(t, 0, got.Cmp(boundary), "got %s", got)

	got = clock.NextAlignmentPoint(boundary.Add(NewRational(1, 1000)), period)
	assert.Equal(t, 0, got.Cmp(boundary.Add(period)), "got %s", got)

	// rounding 1/period to an integer must not leak into the boundary
	naive := boundary.Add(NewRational(1, 30))
	assert.NotEqual(t, 0, got.Cmp(naive))
}

func TestNextAlignmentPoint_IdempotentOnBoundary(t *testing.T) {
	periods := []Rational{
		FrameRate25.Invert(),
		FrameRate50.Invert(),
		FrameRate29_97.Invert(),
		FrameRate59_94.Invert(),
	}
	instants := []Rational{
		FromInt(1700000000),
		mustParse(t, "1700000000.0123"),
		mustParse(t, "1712345678.987654321"),
	}

	clock := NewAlignmentClock(DefaultLeapSeconds)
	for _, period := range periods {
		for _, instant := range instants {
			once := clock.NextAlignmentPoint(instant, period)
			twice := clock.NextAlignmentPoint(once, period)

			assert.Equal(t, 0, once.Cmp(twice), "period %s instant %s", period, instant)
			assert.GreaterOrEqual(t, once.Cmp(instant), 0)
			assert.Less(t, once.Sub(instant).Cmp(period), 0)
		}
	}
}

func TestNextAlignmentPoint_LeapSecondOffset(t *testing.T) {
	period := FrameRate29_97.Invert()
	instant := FromInt(1700000000)

	withLeap := NewAlignmentClock(37).NextAlignmentPoint(instant, period)
	withoutLeap := NewAlignmentClock(0).NextAlignmentPoint(instant, period)

	// 37 s is not a whole number of 29.97 Hz frames, so the grids differ
	assert.NotEqual(t, 0, withLeap.Cmp(withoutLeap))
}

package logger

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestRateLimited(t *testing.T, perSecond float64, burst int) (*RateLimitedLogger, *fakeClock, func() []map[string]interface{}) {
	t.Helper()
	base, buf := newBufferedLogger(logrus.DebugLevel)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	r := NewRateLimitedLogger(NewLogrusAdapter(logrus.NewEntry(base)), perSecond, burst)
	r.now = clock.Now
	return r, clock, func() []map[string]interface{} { return decodeLines(t, buf) }
}

func TestRateLimitedLogger_Burst(t *testing.T) {
	r, _, lines := newTestRateLimited(t, 1, 3)

	var logged int
	for i := 0; i < 10; i++ {
		if r.WarnCategory(CategoryUnderrun, "VRX buffer underrun", map[string]interface{}{"value": -i}) {
			logged++
		}
	}

	assert.Equal(t, 3, logged)
	out := lines()
	require.Len(t, out, 3)
	for _, l := range out {
		assert.Equal(t, "warning", l["level"])
		assert.Equal(t, CategoryUnderrun, l["category"])
		assert.NotContains(t, l, "suppressed")
	}

	assert.Equal(t, []CategoryStats{{Category: CategoryUnderrun, Logged: 3, Suppressed: 7}}, r.Stats())
}

func TestRateLimitedLogger_ReportsSuppressedOnNextMessage(t *testing.T) {
	r, clock, lines := newTestRateLimited(t, 1, 1)

	assert.True(t, r.WarnCategory(CategoryUnderrun, "first", nil))
	assert.False(t, r.WarnCategory(CategoryUnderrun, "dropped", nil))
	assert.False(t, r.WarnCategory(CategoryUnderrun, "dropped", nil))

	clock.t = clock.t.Add(time.Second)
	assert.True(t, r.WarnCategory(CategoryUnderrun, "second", nil))

	out := lines()
	require.Len(t, out, 2)
	assert.Equal(t, "second", out[1]["msg"])
	assert.Equal(t, float64(2), out[1]["suppressed"])
}

func TestRateLimitedLogger_CategoriesAreIndependent(t *testing.T) {
	r, _, _ := newTestRateLimited(t, 1, 1)

	assert.True(t, r.WarnCategory(CategoryUnderrun, "a", nil))
	assert.False(t, r.WarnCategory(CategoryUnderrun, "a", nil))
	assert.True(t, r.InfoCategory(CategoryDoubleFinish, "b", nil))

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, CategoryDoubleFinish, stats[0].Category)
	assert.Equal(t, CategoryUnderrun, stats[1].Category)
	assert.Equal(t, int64(1), stats[1].Suppressed)
}

func TestRateLimitedLogger_Flush(t *testing.T) {
	r, _, lines := newTestRateLimited(t, 1, 1)

	r.WarnCategory(CategoryUnderrun, "a", nil)
	r.WarnCategory(CategoryUnderrun, "a", nil)
	r.WarnCategory(CategoryUnderrun, "a", nil)
	r.Flush()
	// nothing pending after a flush
	r.Flush()

	out := lines()
	require.Len(t, out, 2)
	assert.Equal(t, "Suppressed repeated log messages", out[1]["msg"])
	assert.Equal(t, float64(2), out[1]["suppressed"])
	assert.Equal(t, CategoryUnderrun, out[1]["category"])
}

func TestRateLimitedLogger_DoesNotMutateFields(t *testing.T) {
	r, _, _ := newTestRateLimited(t, 1, 1)

	fields := map[string]interface{}{"value": -3}
	r.WarnCategory(CategoryUnderrun, "a", fields)
	assert.Equal(t, map[string]interface{}{"value": -3}, fields)
}

func TestRateLimitedLogger_PassesThrough(t *testing.T) {
	r, _, lines := newTestRateLimited(t, 1, 1)

	// plain Logger methods are never throttled
	for i := 0; i < 5; i++ {
		r.Info("plain")
	}
	assert.Len(t, lines(), 5)

	var _ Logger = r
}

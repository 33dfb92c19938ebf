package logger

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Log categories throttled by the analyzer
const (
	CategoryUnderrun     = "underrun"
	CategoryDoubleFinish = "double_finish"
	CategoryCapture      = "capture"
)

// RateLimitedLogger throttles repetitive messages per category with a token
// bucket. Messages dropped by the limiter are counted and reported on the
// next message that gets through, and by Flush.
type RateLimitedLogger struct {
	Logger

	limit rate.Limit
	burst int
	now   func() time.Time

	mu         sync.Mutex
	categories map[string]*categoryState
}

type categoryState struct {
	limiter    *rate.Limiter
	logged     int64
	suppressed int64
	pending    int64 // suppressed since the last logged message
}

// CategoryStats holds counters for one log category.
type CategoryStats struct {
	Category   string `json:"category"`
	Logged     int64  `json:"logged"`
	Suppressed int64  `json:"suppressed"`
}

// NewRateLimitedLogger allows perSecond messages per category with bursts
// of up to burst messages.
func NewRateLimitedLogger(base Logger, perSecond float64, burst int) *RateLimitedLogger {
	return &RateLimitedLogger{
		Logger:     base,
		limit:      rate.Limit(perSecond),
		burst:      burst,
		now:        time.Now,
		categories: make(map[string]*categoryState),
	}
}

func (r *RateLimitedLogger) state(category string) *categoryState {
	s, ok := r.categories[category]
	if !ok {
		s = &categoryState{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.categories[category] = s
	}
	return s
}

// LogCategory logs msg at level unless category is over its rate. It
// reports whether the message was written.
func (r *RateLimitedLogger) LogCategory(level logrus.Level, category, msg string, fields map[string]interface{}) bool {
	r.mu.Lock()
	s := r.state(category)
	if !s.limiter.AllowN(r.now(), 1) {
		s.suppressed++
		s.pending++
		r.mu.Unlock()
		return false
	}
	s.logged++
	pending := s.pending
	s.pending = 0
	r.mu.Unlock()

	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["category"] = category
	if pending > 0 {
		out["suppressed"] = pending
	}
	r.Logger.WithFields(out).Log(level, msg)
	return true
}

// WarnCategory logs a throttled warning.
func (r *RateLimitedLogger) WarnCategory(category, msg string, fields map[string]interface{}) bool {
	return r.LogCategory(logrus.WarnLevel, category, msg, fields)
}

// InfoCategory logs a throttled info message.
func (r *RateLimitedLogger) InfoCategory(category, msg string, fields map[string]interface{}) bool {
	return r.LogCategory(logrus.InfoLevel, category, msg, fields)
}

// Flush writes one summary line for every category with messages
// suppressed since its last logged message.
func (r *RateLimitedLogger) Flush() {
	r.mu.Lock()
	type flushed struct {
		category string
		count    int64
	}
	var out []flushed
	for name, s := range r.categories {
		if s.pending > 0 {
			out = append(out, flushed{category: name, count: s.pending})
			s.pending = 0
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].category < out[j].category })
	for _, f := range out {
		r.Logger.WithFields(map[string]interface{}{
			"category":   f.category,
			"suppressed": f.count,
		}).Info("Suppressed repeated log messages")
	}
}

// Stats returns per-category counters sorted by category.
func (r *RateLimitedLogger) Stats() []CategoryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]CategoryStats, 0, len(r.categories))
	for name, s := range r.categories {
		stats = append(stats, CategoryStats{
			Category:   name,
			Logged:     s.logged,
			Suppressed: s.suppressed,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats
}

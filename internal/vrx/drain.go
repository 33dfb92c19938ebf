package vrx

import (
	"github.com/zsiec/vrx/internal/timing"
)

// InFlightFrame is a frame that has been opened in the virtual receive
// buffer and not yet fully drained.
type InFlightFrame struct {
	// DrainStart is the alignment point plus TRO; no reads happen at or
	// before it.
	DrainStart timing.Rational
	// Drained is the cumulative number of read slots elapsed.
	Drained int
	// DrainedPrev is Drained as of the previous evaluation.
	DrainedPrev int
	// Resident is packets received for this frame minus packets drained.
	// It goes negative when the reads outrun the sender.
	Resident int
}

// FrameDrainTracker evaluates how many packets of a frame have been read
// out of the buffer at a given time.
type FrameDrainTracker struct {
	readSpacing     timing.Rational
	packetsPerFrame int
}

// NewFrameDrainTracker creates a tracker reading one packet every
// readSpacing seconds from frames of packetsPerFrame packets.
func NewFrameDrainTracker(readSpacing timing.Rational, packetsPerFrame int) FrameDrainTracker {
	return FrameDrainTracker{
		readSpacing:     readSpacing,
		packetsPerFrame: packetsPerFrame,
	}
}

// Advance brings frame up to now and returns the packets drained since
// the previous call and whether the frame has been drained completely.
//
// Read slots are counted inclusively from DrainStart in readSpacing steps,
// so the first evaluation after DrainStart already accounts for two slots.
func (t FrameDrainTracker) Advance(frame *InFlightFrame, now timing.Rational) (delta int, finished bool) {
	if now.Cmp(frame.DrainStart) > 0 {
		slots := now.Sub(frame.DrainStart).Add(t.readSpacing).Quo(t.readSpacing).Ceil()
		if drained := int(slots.Int64()); drained > frame.Drained {
			frame.Drained = drained
		}

		delta = frame.Drained - frame.DrainedPrev
		frame.Resident -= delta
		frame.DrainedPrev = frame.Drained
	}

	return delta, frame.Drained >= t.packetsPerFrame
}

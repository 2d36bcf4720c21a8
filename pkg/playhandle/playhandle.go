package playhandle

import (
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

// A PlayHandle is anything currently producing audio for the mixer: a playing note,
// a previewed sample, a background job.
//
// The mixer calls Render once per render pass with a silent buffer of at least
// frames frames, and routes the frames produced into the handle's port.
// Once IsFinished reports true the mixer purges the handle at the end of the pass;
// a handle is never rendered again after it has been purged.
//
// Render is only ever called from the render path, one pass at a time.
// IsFinished may be called from other goroutines and must be safe to do so.
type PlayHandle interface {
	// Fill buf with up to frames frames and return how many were produced.
	// A non-nil error marks the handle finished; it is never propagated further.
	Render(buf []frame.SampleFrame, frames int) (int, error)

	IsFinished() bool
}

// A PlayHandle routed to a specific port. Handles without a port are
// mixed into the mixer's master port at unit volume.
type Routed interface {
	Port() *audioport.Port
}

// A PlayHandle that starts part way into the next buffer.
// FramesAhead is queried once per pass, before Render, and the handle renders
// framesPerBuffer - FramesAhead frames in that pass.
type Delayed interface {
	FramesAhead() int
}

// A PlayHandle that can be asked to wind down, e.g. a note receiving note-off.
// Release must be safe to call from any goroutine, and calling it more than once has no further effect.
type Releaser interface {
	Release()
}

// A PlayHandle whose Render does not touch state shared with other handles,
// so the mixer may render it concurrently with other parallelizable handles.
type Parallelizable interface {
	SupportsParallelizing() bool
}

// A PlayHandle that wants to know when the engine sample rate changes.
// Called with the render path paused.
type SampleRateListener interface {
	SampleRateChanged(sampleRate int)
}

// Return the port a handle routes to, or nil if it does not declare one.
func PortOf(h PlayHandle) *audioport.Port {
	if r, ok := h.(Routed); ok {
		return r.Port()
	}
	return nil
}

// Return how many frames into the next buffer a handle starts.
func FramesAheadOf(h PlayHandle) int {
	if d, ok := h.(Delayed); ok {
		return max(d.FramesAhead(), 0)
	}
	return 0
}

func CanParallelize(h PlayHandle) bool {
	p, ok := h.(Parallelizable)
	return ok && p.SupportsParallelizing()
}

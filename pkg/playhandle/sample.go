package playhandle

import (
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopOn
	LoopPingPong
)

type SampleOptions struct {
	Loop    LoopMode
	Reverse bool

	// Playback speed relative to the sample's own pitch (1.0 plays it as recorded).
	Pitch float64

	// Linear gain, unit gain when nil.
	Gain *float32
}

// A SampleHandle plays a stereo sample buffer, optionally looped, reversed or pitched.
// It resamples on the fly with linear interpolation from the sample's rate to the engine rate.
type SampleHandle struct {
	port *audioport.Port

	data             []frame.SampleFrame
	sampleSampleRate int
	options          SampleOptions
	gain             float32

	step      float64
	pos       float64
	direction float64

	releaseRequested atomic.Bool
	finished         atomic.Bool
}

// Create a handle playing data (recorded at dataSampleRate) on an engine running at sampleRate.
// The handle does not copy data; it must not change while the handle plays.
func NewSampleHandle(data []frame.SampleFrame, dataSampleRate int, sampleRate int, port *audioport.Port, options SampleOptions) *SampleHandle {
	if options.Pitch <= 0 {
		options.Pitch = 1.0
	}

	h := &SampleHandle{
		port:             port,
		data:             data,
		sampleSampleRate: dataSampleRate,
		options:          options,
		gain:             1.0,
		direction:        1.0,
	}
	if options.Gain != nil {
		h.gain = *options.Gain
	}
	if options.Reverse {
		h.direction = -1.0
		h.pos = float64(len(data) - 1)
	}
	if len(data) == 0 {
		h.finished.Store(true)
	}
	h.SampleRateChanged(sampleRate)
	return h
}

func (h *SampleHandle) Port() *audioport.Port {
	return h.port
}

func (h *SampleHandle) SupportsParallelizing() bool {
	return true
}

func (h *SampleHandle) SampleRateChanged(sampleRate int) {
	if sampleRate <= 0 || h.sampleSampleRate <= 0 {
		h.step = h.options.Pitch
		return
	}
	h.step = h.options.Pitch * float64(h.sampleSampleRate) / float64(sampleRate)
}

// Stop playback, fading out over the next rendered buffer.
func (h *SampleHandle) Release() {
	h.releaseRequested.Store(true)
}

func (h *SampleHandle) IsFinished() bool {
	return h.finished.Load()
}

func (h *SampleHandle) Render(buf []frame.SampleFrame, frames int) (int, error) {
	if h.finished.Load() {
		return 0, nil
	}
	frames = min(frames, len(buf))
	fadeOut := h.releaseRequested.Load()
	last := len(h.data) - 1

	for i := range frames {
		if !h.wrap(last) {
			h.finished.Store(true)
			return i, nil
		}

		idx := int(h.pos)
		frac := float32(h.pos - float64(idx))
		next := min(idx+1, last)
		a, b := h.data[idx], h.data[next]

		gain := h.gain
		if fadeOut {
			gain *= 1.0 - float32(i)/float32(frames)
		}
		buf[i] = frame.SampleFrame{
			(a[0] + (b[0]-a[0])*frac) * gain,
			(a[1] + (b[1]-a[1])*frac) * gain,
		}

		h.pos += h.step * h.direction
	}

	if fadeOut {
		h.finished.Store(true)
	}
	return frames, nil
}

// Bring pos back inside the sample according to the loop mode.
// Returns false once a non-looping sample has run out.
func (h *SampleHandle) wrap(last int) bool {
	length := float64(last + 1)
	end := float64(last)

	switch h.options.Loop {
	case LoopOn:
		for h.pos >= length {
			h.pos -= length
		}
		for h.pos < 0 {
			h.pos += length
		}
		return true
	case LoopPingPong:
		if last == 0 {
			h.pos = 0
			return true
		}
		for h.pos < 0 || h.pos > end {
			if h.pos < 0 {
				h.pos = -h.pos
				h.direction = 1.0
			} else {
				h.pos = 2*end - h.pos
				h.direction = -1.0
			}
		}
		return true
	default:
		return h.pos >= 0 && h.pos <= end
	}
}

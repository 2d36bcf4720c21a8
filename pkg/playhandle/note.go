package playhandle

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformSquare
	WaveformSaw
	WaveformTriangle
)

const (
	defaultAttack  = 0.005
	defaultRelease = 0.05
)

// Frequency in Hz of a MIDI key, tuned so that frame.BaseKey plays frame.BaseFreq.
func KeyFrequency(key uint8) float64 {
	return frame.BaseFreq * math.Pow(2, float64(int(key)-frame.BaseKey)/12.0)
}

type NoteOptions struct {
	Waveform Waveform

	// Attack and release times in seconds. Zero selects short defaults that avoid clicks.
	Attack  float64
	Release float64

	// Length of the note in frames, after which it releases itself.
	// Zero plays until Release is called.
	Duration int64

	// Frames into the first buffer before the note starts sounding.
	FramesAhead int
}

// A NoteHandle plays one enveloped oscillator note until it is released and its
// release phase has run out.
type NoteHandle struct {
	port *audioport.Port

	key      uint8
	velocity uint8
	options  NoteOptions

	sampleRate    int
	phase         float64
	phaseStep     float64
	gain          float32
	attackFrames  int64
	releaseFrames int64

	framesPlayed int64
	framesAhead  int

	releaseRequested atomic.Bool
	releasing        bool
	releasePos       int64
	releaseLevel     float32

	finished atomic.Bool
}

// Create a note for a MIDI key and velocity at the given engine sample rate, routed to port
// (nil for the mixer's master port).
func NewNoteHandle(key uint8, velocity uint8, sampleRate int, port *audioport.Port, options NoteOptions) *NoteHandle {
	if options.Attack <= 0 {
		options.Attack = defaultAttack
	}
	if options.Release <= 0 {
		options.Release = defaultRelease
	}

	n := &NoteHandle{
		port:        port,
		key:         key,
		velocity:    min(velocity, 127),
		options:     options,
		gain:        float32(min(velocity, 127)) / 127.0,
		framesAhead: max(options.FramesAhead, 0),
	}
	n.SampleRateChanged(sampleRate)
	return n
}

func (n *NoteHandle) Key() uint8 {
	return n.key
}

func (n *NoteHandle) Velocity() uint8 {
	return n.velocity
}

func (n *NoteHandle) Port() *audioport.Port {
	return n.port
}

func (n *NoteHandle) FramesAhead() int {
	return n.framesAhead
}

// Notes only touch their own state, so the mixer may render them in parallel.
func (n *NoteHandle) SupportsParallelizing() bool {
	return true
}

func (n *NoteHandle) SampleRateChanged(sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	n.sampleRate = sampleRate
	n.phaseStep = KeyFrequency(n.key) / float64(sampleRate)
	n.attackFrames = max(int64(n.options.Attack*float64(sampleRate)), 1)
	n.releaseFrames = max(int64(n.options.Release*float64(sampleRate)), 1)
}

func (n *NoteHandle) Release() {
	n.releaseRequested.Store(true)
}

func (n *NoteHandle) IsFinished() bool {
	return n.finished.Load()
}

func (n *NoteHandle) Render(buf []frame.SampleFrame, frames int) (int, error) {
	n.framesAhead = 0
	frames = min(frames, len(buf))

	for i := range frames {
		if !n.releasing && (n.releaseRequested.Load() ||
			(n.options.Duration > 0 && n.framesPlayed >= n.options.Duration)) {
			n.releasing = true
			n.releaseLevel = n.attackLevel()
		}

		var level float32
		if n.releasing {
			if n.releasePos >= n.releaseFrames {
				n.finished.Store(true)
				return i, nil
			}
			level = n.releaseLevel * (1.0 - float32(n.releasePos)/float32(n.releaseFrames))
			n.releasePos++
		} else {
			level = n.attackLevel()
		}

		s := n.oscillate() * level * n.gain
		buf[i] = frame.SampleFrame{s, s}

		n.phase += n.phaseStep
		n.phase -= math.Floor(n.phase)
		n.framesPlayed++
	}
	return frames, nil
}

func (n *NoteHandle) attackLevel() float32 {
	if n.framesPlayed >= n.attackFrames {
		return 1.0
	}
	return float32(n.framesPlayed) / float32(n.attackFrames)
}

func (n *NoteHandle) oscillate() float32 {
	switch n.options.Waveform {
	case WaveformSquare:
		if n.phase < 0.5 {
			return 1.0
		}
		return -1.0
	case WaveformSaw:
		return float32(2.0*n.phase - 1.0)
	case WaveformTriangle:
		return float32(1.0 - 4.0*math.Abs(n.phase-0.5))
	default:
		return float32(math.Sin(2 * math.Pi * n.phase))
	}
}

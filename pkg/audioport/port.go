package audioport

import (
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/google/uuid"
)

// A Port is a named mixing destination, roughly a track or a channel strip.
//
// Any number of sources may Mix into a Port during one render pass; the mixer then sums the
// Port's current period into the master buffer and advances the Port to the next period.
//
// The Port keeps two periods of accumulation so that a source may write ahead of the
// current buffer (framesAhead), e.g. a note starting part way through a buffer
// whose tail spills into the following one.
//
// A Port is not safe for concurrent use. The mixer only touches it while holding the
// render-path lock, and any caller mutating a registered Port must do the same
// (see mixer.Pause and mixer.Play).
type Port struct {
	id   uuid.UUID
	name string

	volume frame.VolumeVector

	framesPerBuffer int
	numChannels     int

	// The period being assembled for the current render pass.
	firstBuffer []frame.SurroundFrame
	// The period after it, receiving whatever spills past the end of firstBuffer.
	secondBuffer []frame.SurroundFrame
}

// Create a new Port with the given name and volume vector.
//
// The Port holds no buffers until it is sized with Resize, which the mixer does
// when the port is registered.
func NewPort(name string, volume frame.VolumeVector) *Port {
	return &Port{
		id:          uuid.New(),
		name:        name,
		volume:      volume,
		numChannels: frame.SurroundChannels,
	}
}

func (p *Port) ID() uuid.UUID {
	return p.id
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) Volume() frame.VolumeVector {
	return p.volume
}

// Replace the volume vector. Only call while the render path is paused.
func (p *Port) SetVolume(volume frame.VolumeVector) {
	p.volume = volume
}

func (p *Port) FramesPerBuffer() int {
	return p.framesPerBuffer
}

// Size both periods for framesPerBuffer frames, mixing numChannels surround channels
// (2 for a stereo engine, frame.SurroundChannels otherwise).
// Existing content is discarded if the size changes.
func (p *Port) Resize(framesPerBuffer int, numChannels int) {
	p.numChannels = min(max(numChannels, 1), frame.SurroundChannels)
	if framesPerBuffer == p.framesPerBuffer {
		return
	}
	p.framesPerBuffer = framesPerBuffer
	p.firstBuffer = make([]frame.SurroundFrame, framesPerBuffer)
	p.secondBuffer = make([]frame.SurroundFrame, framesPerBuffer)
}

// Add frames of src into the port, scaled by volume, starting framesAhead frames into
// the current period. Content beyond the current period goes to the next one, and
// anything beyond the next period is dropped.
//
// Mixing is additive: it never overwrites what other sources have already written.
// src must hold at least frames frames.
func (p *Port) Mix(src []frame.SampleFrame, frames int, framesAhead int, volume frame.VolumeVector) {
	if frames <= 0 || p.framesPerBuffer == 0 {
		return
	}
	frames = min(frames, len(src))
	framesAhead = max(framesAhead, 0)

	for i := range frames {
		pos := framesAhead + i
		var dst *frame.SurroundFrame
		if pos < p.framesPerBuffer {
			dst = &p.firstBuffer[pos]
		} else if pos < 2*p.framesPerBuffer {
			dst = &p.secondBuffer[pos-p.framesPerBuffer]
		} else {
			return
		}

		s := &src[i]
		for c := 0; c < p.numChannels; c++ {
			dst[c] += s[c%frame.DefaultChannels] * volume[c]
		}
	}
}

// The period assembled for the current render pass.
func (p *Port) Buffer() []frame.SurroundFrame {
	return p.firstBuffer
}

// Advance to the next period: the second period becomes current and a silent
// period takes its place.
func (p *Port) NextPeriod() {
	p.firstBuffer, p.secondBuffer = p.secondBuffer, p.firstBuffer
	frame.ClearSurroundBuffer(p.secondBuffer)
}

// Silence both periods.
func (p *Port) Clear() {
	frame.ClearSurroundBuffer(p.firstBuffer)
	frame.ClearSurroundBuffer(p.secondBuffer)
}

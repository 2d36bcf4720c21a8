package device

import (
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/oov/audio/resampler"
)

// Converts mixer output (surround frames at the engine rate) to interleaved PCM at
// the rate and channel count of a device. Buffers are allocated once, sized from the
// engine's frames per buffer, so converting in a render callback does not allocate.
type bufferConverter struct {
	numChannels int
	inRate      int
	outRate     int

	resampler *resampler.Resampler

	interleaved frame.PCMFrame
	planarIn    [][]float32
	planarOut   [][]float32
	out         frame.PCMFrame
}

func newBufferConverter(numChannels int, inRate int, outRate int, framesPerBuffer int) *bufferConverter {
	c := &bufferConverter{
		numChannels: numChannels,
		inRate:      inRate,
		outRate:     outRate,
		interleaved: make(frame.PCMFrame, framesPerBuffer*numChannels),
	}
	if inRate == outRate || inRate <= 0 || outRate <= 0 {
		return c
	}

	outFrames := framesPerBuffer*outRate/inRate + 16
	c.resampler = resampler.New(numChannels, inRate, outRate, resampleQuality)
	c.planarIn = make([][]float32, numChannels)
	c.planarOut = make([][]float32, numChannels)
	for ch := range numChannels {
		c.planarIn[ch] = make([]float32, framesPerBuffer)
		c.planarOut[ch] = make([]float32, outFrames)
	}
	c.out = make(frame.PCMFrame, outFrames*numChannels)
	return c
}

// Whether the converter was built for this engine configuration.
func (c *bufferConverter) matches(inRate int, framesPerBuffer int) bool {
	return c.inRate == inRate && cap(c.interleaved) >= framesPerBuffer*c.numChannels
}

// Convert one mixer buffer. The returned slice is reused by the next call.
func (c *bufferConverter) convert(buf []frame.SurroundFrame) frame.PCMFrame {
	c.interleaved = frame.Downmix(buf, c.numChannels, c.interleaved)
	if c.resampler == nil {
		return c.interleaved
	}

	numFrames := min(len(buf), len(c.planarIn[0]))
	for i := range numFrames {
		for ch := range c.numChannels {
			c.planarIn[ch][i] = c.interleaved[i*c.numChannels+ch]
		}
	}

	written := len(c.planarOut[0])
	for ch := range c.numChannels {
		_, w := c.resampler.ProcessFloat32(ch, c.planarIn[ch][:numFrames], c.planarOut[ch])
		written = min(written, w)
	}

	out := c.out[:written*c.numChannels]
	for i := range written {
		for ch := range c.numChannels {
			out[i*c.numChannels+ch] = c.planarOut[ch][i]
		}
	}
	return out
}

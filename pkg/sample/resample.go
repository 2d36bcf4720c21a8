package sample

import (
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/oov/audio/resampler"
)

const resampleQuality = 10

// Return a copy of buf at sampleRate. Returns buf itself if the rate already matches.
//
// Play handles resample on the fly, so this is only needed to avoid that cost
// for samples played many times, e.g. by the sampler instrument.
func Resample(buf *Buffer, sampleRate int) *Buffer {
	if buf.SampleRate == sampleRate || buf.SampleRate <= 0 || sampleRate <= 0 || buf.Len() == 0 {
		return buf
	}

	r := resampler.New(frame.DefaultChannels, buf.SampleRate, sampleRate, resampleQuality)

	// A few frames of slack for the filter
	outFrames := int(int64(buf.Len())*int64(sampleRate)/int64(buf.SampleRate)) + 64
	planarIn := make([][]float32, frame.DefaultChannels)
	planarOut := make([][]float32, frame.DefaultChannels)
	for ch := range frame.DefaultChannels {
		planarIn[ch] = make([]float32, buf.Len())
		planarOut[ch] = make([]float32, outFrames)
		for i, f := range buf.Frames {
			planarIn[ch][i] = f[ch]
		}
	}

	written := outFrames
	for ch := range frame.DefaultChannels {
		_, w := r.ProcessFloat32(ch, planarIn[ch], planarOut[ch])
		written = min(written, w)
	}

	out := &Buffer{
		Frames:     make([]frame.SampleFrame, written),
		SampleRate: sampleRate,
	}
	for i := range out.Frames {
		out.Frames[i] = frame.SampleFrame{planarOut[0][i], planarOut[1][i]}
	}
	return out
}

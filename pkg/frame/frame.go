package frame

import "math"

const (
	// The number of channels of a plain sample frame (stereo).
	DefaultChannels = 2

	// The number of channels the mixer sums into before handing a buffer to a device.
	// A stereo-only engine uses only the first DefaultChannels of every SurroundFrame.
	SurroundChannels = 4

	// The number of frames in one audio buffer unless configured otherwise.
	DefaultBufferSize = 512

	// Multiplier to convert a clipped sample to a signed 16 bit integer.
	OutputSampleMultiplier float32 = 32767.0

	// Frequency of the base tone (A4), used for tuning notes and samples.
	BaseFreq float64 = 440.0

	// MIDI key number of the base tone.
	BaseKey = 69
)

// A single sample value, normalized to [-1.0, 1.0] once clipped.
type Sample = float32

// One instant of stereo audio. Play handles render into slices of these.
type SampleFrame [DefaultChannels]Sample

// One instant of surround audio. The mixer sums all ports into slices of these.
type SurroundFrame [SurroundChannels]Sample

// Interleaved PCM samples, as passed along device streams.
// A PCMFrame carries any number of frames, and the number of channels is given
// by the DeviceProperties of the stream it travels on.
type PCMFrame []float32

// Saturate a sample to [-1.0, 1.0]. Values inside the range pass unchanged, NaN becomes silence.
func Clip(s Sample) Sample {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1.0 {
		return 1.0
	} else if s < -1.0 {
		return -1.0
	}
	return s
}

// Convert a sample to a signed 16 bit integer, clipping first.
func ToInt16(s Sample) int16 {
	return int16(Clip(s) * OutputSampleMultiplier)
}

// Silence a stereo buffer.
func ClearAudioBuffer(buf []SampleFrame) {
	clear(buf)
}

// Silence a surround buffer.
func ClearSurroundBuffer(buf []SurroundFrame) {
	clear(buf)
}

// Convert surround frames to interleaved PCM with numChannels channels, writing into dst
// (grown if required) and returning the filled slice.
//
// Four channels are copied as is. Two channels average the front and rear pair of each
// side, which restores the original level of a stereo signal routed to all four channels.
// A single channel averages every surround channel. Channel counts above four copy the
// four surround channels and leave the rest silent.
// Every output sample is clipped.
func Downmix(src []SurroundFrame, numChannels int, dst PCMFrame) PCMFrame {
	need := len(src) * numChannels
	if cap(dst) < need {
		dst = make(PCMFrame, need)
	}
	dst = dst[:need]

	switch numChannels {
	case 1:
		for i, f := range src {
			dst[i] = Clip((f[0] + f[1] + f[2] + f[3]) / SurroundChannels)
		}
	case DefaultChannels:
		for i, f := range src {
			dst[2*i] = Clip((f[0] + f[2]) / 2)
			dst[2*i+1] = Clip((f[1] + f[3]) / 2)
		}
	default:
		for i, f := range src {
			out := dst[i*numChannels : (i+1)*numChannels]
			for c := range out {
				if c < SurroundChannels {
					out[c] = Clip(f[c])
				} else {
					out[c] = 0
				}
			}
		}
	}
	return dst
}

// Convert interleaved PCM with numChannels channels into stereo frames.
// Mono input is copied to both sides; only the first two channels of wider input are kept.
// Trailing samples that do not fill a frame are dropped.
func FromInterleaved(data []float32, numChannels int, dst []SampleFrame) []SampleFrame {
	if numChannels <= 0 {
		return dst[:0]
	}
	numFrames := len(data) / numChannels
	if cap(dst) < numFrames {
		dst = make([]SampleFrame, numFrames)
	}
	dst = dst[:numFrames]

	for i := range dst {
		s := data[i*numChannels : (i+1)*numChannels]
		if numChannels == 1 {
			dst[i] = SampleFrame{s[0], s[0]}
		} else {
			dst[i] = SampleFrame{s[0], s[1]}
		}
	}
	return dst
}

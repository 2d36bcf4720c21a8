package device

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/oov/audio/resampler"
)

const (
	// To avoid reallocating for every source frame, reuse a buffer with "enough size".
	// Since we don't know the frame duration (number of samples) beforehand, we must estimate.
	//
	// The largest engine buffer is 1024 frames of 4 channels at 88200Hz, which resampled
	// up to 192000Hz is under 9000 samples. 2**14 = 16384 leaves room for anything sensible.
	bufferSize int = 16384

	resampleQuality = 10
)

var errUnsupportedConversion = errors.New("unsupported channel conversion")

// Middle-man processing device to handle format mismatches
// between the source data format to the sink data format.
//
// e.g. if the mixer stream is stereo at 44100Hz, but a network sink wants mono at 8000Hz,
// this device will handle the conversion.
//
// This device is both a sink and a source!
type AudioFormatConversionDevice struct {
	// We take the convention that the source channel is the *external* source,
	// i.e. the channel data arrives on, and the sink channel is the *external* sink,
	// i.e. the channel data leaves on.
	//
	// GetStream returns the sink channel.
	// SetStream sets the source channel.

	// The stream that data *arrives on*
	sourceChannel    <-chan frame.PCMFrame
	sourceProperties audiodevice.DeviceProperties

	// The stream that data *leaves on*
	sinkChannel    chan frame.PCMFrame
	sinkProperties audiodevice.DeviceProperties

	// The functions to apply when processing the source data to sink format, in order
	formatConversionFunctions []audioFormatConversionFunction

	shutdownOnce sync.Once
}

// Create a new AudioFormatConversionDevice by defining:
// - the source properties (the properties of the audio being fed into this device)
// - the sink properties (the properties of the audio leaving this device)
//
// Channel counts of 1, 2 and 4 are supported on either side.
//
// Note one must still call SetStream, passing in the source channel,
// and GetStream, to receive the sink channel, to use this device, in an
// effort to remain consistent with the device interfaces.
//
// This device will only start converting once SetStream is called.
func NewAudioFormatConversionDevice(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
) (*AudioFormatConversionDevice, error) {
	formatConversionFunctions := make([]audioFormatConversionFunction, 0)

	if sourceProperties.NumChannels != sinkProperties.NumChannels {
		f, err := newChannelConversionFunction(sourceProperties.NumChannels, sinkProperties.NumChannels)
		if err != nil {
			return nil, err
		}
		slog.Debug("adding channel conversion",
			"from", sourceProperties.NumChannels,
			"to", sinkProperties.NumChannels,
		)
		formatConversionFunctions = append(formatConversionFunctions, f)
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		slog.Debug("adding resampler",
			"from", sourceProperties.SampleRate,
			"to", sinkProperties.SampleRate,
		)
		formatConversionFunctions = append(formatConversionFunctions, newResampleFunction(sourceProperties, sinkProperties))
	}

	return &AudioFormatConversionDevice{
		sourceProperties:          sourceProperties,
		sinkProperties:            sinkProperties,
		sinkChannel:               make(chan frame.PCMFrame),
		formatConversionFunctions: formatConversionFunctions,
	}, nil
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

// Get the source stream of this audio device.
// Raw audio data (as PCMFrames) will arrive on the returned channel.
func (d *AudioFormatConversionDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkChannel
}

// It is assumed that once closed, this device will transmit no more information.
func (d *AudioFormatConversionDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkChannel)
	})
}

// WARNING:
// GetDeviceProperties of the AudioFormatConversionDevice returns the
// device properties of the LEAVING data. i.e. the data that exits this device!
//
// If you need the properties of the data entering this device, call GetSourceDeviceProperties()
func (d *AudioFormatConversionDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.sinkProperties
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// Set the source channel of this audio device, i.e. where data comes from.
//
// When this stream is closed, the device closes its own sink channel.
func (d *AudioFormatConversionDevice) SetStream(sourceChannel <-chan frame.PCMFrame) {
	d.sourceChannel = sourceChannel
	go func() {
		for pcmFrame := range d.sourceChannel {
			for _, f := range d.formatConversionFunctions {
				pcmFrame = f(pcmFrame)
			}
			// The conversion buffers are reused, so hand a copy downstream
			d.sinkChannel <- append(frame.PCMFrame(nil), pcmFrame...)
		}
		// This goroutine dies when the source channel is closed.
		d.Close()
	}()
}

func (d *AudioFormatConversionDevice) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return d.sourceProperties
}

// --------------------------------------------------------------------------------

type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func newChannelConversionFunction(from int, to int) (audioFormatConversionFunction, error) {
	switch {
	case from == 1 && to == 2:
		return monoToStereo(), nil
	case from == 2 && to == 1:
		return stereoToMono(), nil
	case from == 4 && (to == 1 || to == 2):
		return surroundDownmix(to), nil
	case from == 2 && to == 4:
		return stereoToSurround(), nil
	default:
		return nil, errUnsupportedConversion
	}
}

func monoToStereo() audioFormatConversionFunction {
	buf := make(frame.PCMFrame, bufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := min(len(sourceFrame), len(buf)/2)
		for i, v := range sourceFrame[:n] {
			buf[2*i] = v
			buf[2*i+1] = v
		}
		return buf[:2*n]
	}
}

func stereoToMono() audioFormatConversionFunction {
	buf := make(frame.PCMFrame, bufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := min(len(sourceFrame)/2, len(buf))
		for i := range n {
			buf[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
		}
		return buf[:n]
	}
}

func stereoToSurround() audioFormatConversionFunction {
	buf := make(frame.PCMFrame, bufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := min(len(sourceFrame)/2, len(buf)/4)
		for i := range n {
			l, r := sourceFrame[2*i], sourceFrame[2*i+1]
			buf[4*i], buf[4*i+1], buf[4*i+2], buf[4*i+3] = l, r, l, r
		}
		return buf[:4*n]
	}
}

func surroundDownmix(to int) audioFormatConversionFunction {
	surround := make([]frame.SurroundFrame, bufferSize/4)
	buf := make(frame.PCMFrame, bufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := min(len(sourceFrame)/4, len(surround))
		for i := range n {
			copy(surround[i][:], sourceFrame[4*i:4*i+4])
		}
		return frame.Downmix(surround[:n], to, buf)
	}
}

func newResampleFunction(sourceProperties audiodevice.DeviceProperties, sinkProperties audiodevice.DeviceProperties) audioFormatConversionFunction {
	// Channel conversion has already happened, so the data has the sink's channel count
	numChannels := sinkProperties.NumChannels
	r := resampler.New(numChannels, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)

	planarSource := make([][]float32, numChannels)
	planarSink := make([][]float32, numChannels)
	for ch := range numChannels {
		planarSource[ch] = make([]float32, bufferSize/numChannels)
		planarSink[ch] = make([]float32, bufferSize/numChannels)
	}
	buf := make(frame.PCMFrame, bufferSize)

	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		n := min(len(sourceFrame)/numChannels, len(planarSource[0]))

		// Decode to planar, sourceFrame is interleaved
		for i := range n {
			for ch := range numChannels {
				planarSource[ch][i] = sourceFrame[i*numChannels+ch]
			}
		}

		written := len(planarSink[0])
		for ch := range numChannels {
			_, w := r.ProcessFloat32(ch, planarSource[ch][:n], planarSink[ch])
			written = min(written, w)
		}

		// Interleave again
		for i := range written {
			for ch := range numChannels {
				buf[i*numChannels+ch] = planarSink[ch][i]
			}
		}
		return buf[:written*numChannels]
	}
}

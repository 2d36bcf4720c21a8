package device

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

// Middle-man processing device applying a monitor gain to a rendered stream,
// clipping the result and tracking the peak level of the last frame.
//
// This device is both a sink and a source!
type AudioAugmentationDevice struct {
	deviceProperties audiodevice.DeviceProperties

	// The stream that data *arrives on*
	sourceStream <-chan frame.PCMFrame

	// The stream that data *leaves on*
	sinkStream chan frame.PCMFrame

	augmentationFunctions []audioAugmentationFunction

	// float32 bits, read by the stream goroutine while other goroutines set it
	gain atomic.Uint32
	peak atomic.Uint32

	shutdownOnce sync.Once
}

// Create a new AudioAugmentationDevice with a gain of 1.0.
//
// Note one must still call SetStream, passing in the source channel,
// and GetStream, to receive the sink channel, to use this device.
func NewAudioAugmentationDevice(deviceProperties audiodevice.DeviceProperties) *AudioAugmentationDevice {
	d := &AudioAugmentationDevice{
		deviceProperties: deviceProperties,
		sinkStream:       make(chan frame.PCMFrame),
	}
	d.SetGain(1.0)
	d.augmentationFunctions = []audioAugmentationFunction{
		d.applyGain,
		clip,
		d.meter,
	}
	return d
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

func (d *AudioAugmentationDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *AudioAugmentationDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkStream)
	})
}

// The device properties of the incoming and outgoing PCMFrames are identical,
// so this serves as both Source and Sink Device Properties
func (d *AudioAugmentationDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// Frames are modified in place, the device assumes it owns what arrives on sourceStream.
func (d *AudioAugmentationDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	d.sourceStream = sourceStream
	go func() {
		for pcmFrame := range d.sourceStream {
			for _, f := range d.augmentationFunctions {
				pcmFrame = f(pcmFrame)
			}
			d.sinkStream <- pcmFrame
		}
		d.Close()
	}()
}

// --------------------------------------------------------------------------------

// Set the gain applied to the stream. Negative values are treated as 0.0 (muted).
func (d *AudioAugmentationDevice) SetGain(gain float32) {
	d.gain.Store(math.Float32bits(max(gain, 0.0)))
}

func (d *AudioAugmentationDevice) Gain() float32 {
	return math.Float32frombits(d.gain.Load())
}

// The largest absolute sample value of the most recent frame, after gain and clipping.
func (d *AudioAugmentationDevice) Peak() float32 {
	return math.Float32frombits(d.peak.Load())
}

// --------------------------------------------------------------------------------

// An audioAugmentationFunction produces PCMFrames with the same device properties
// as sourceFrame, usually reusing its memory.
type audioAugmentationFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func (d *AudioAugmentationDevice) applyGain(sourceFrame frame.PCMFrame) frame.PCMFrame {
	gain := d.Gain()
	if gain == 1.0 {
		return sourceFrame
	}
	for i := range sourceFrame {
		sourceFrame[i] *= gain
	}
	return sourceFrame
}

func clip(sourceFrame frame.PCMFrame) frame.PCMFrame {
	for i, s := range sourceFrame {
		sourceFrame[i] = frame.Clip(s)
	}
	return sourceFrame
}

func (d *AudioAugmentationDevice) meter(sourceFrame frame.PCMFrame) frame.PCMFrame {
	var peak float32
	for _, s := range sourceFrame {
		peak = max(peak, float32(math.Abs(float64(s))))
	}
	d.peak.Store(math.Float32bits(peak))
	return sourceFrame
}

package audiodevice

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

// Returned when no output device at all could be opened.
var ErrNoAudioDevice = errors.New("no audio output device available")

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// The engine side of an output device: something that hands out one mixed
// surround buffer per call, at a fixed size and sample rate.
//
// RenderNextBuffer returns a read-only view that stays valid until the next call.
// Implemented by the mixer.
type Renderer interface {
	RenderNextBuffer() []frame.SurroundFrame
	FramesPerAudioBuffer() int
	SampleRate() int
}

// Interface for the output device the engine renders into, e.g. speakers.
//
// Output devices drive the render cadence: once started, the device asks the
// Renderer for one buffer at a time, either from a callback of the platform
// (push model) or from its own loop that blocks on writing each buffer (pull model).
// The device converts the surround buffer to its own channel count and sample rate.
type OutputDevice interface {
	// Human-readable name of the device, for display.
	Name() string

	// The format the device plays, which need not match the renderer.
	GetDeviceProperties() DeviceProperties

	// Begin pulling buffers from r. Starting a started device restarts it with r.
	Start(r Renderer) error

	// Stop pulling buffers. When Stop returns no further call to RenderNextBuffer
	// will be started by this device, although one may still be completing.
	// The device can be started again.
	Stop()

	// Stop the device and release its resources. A closed device cannot be restarted.
	Close() error
}

// Interface for audio source device, e.g. microphones
//
// Source devices need only define some way to get data out of the device,
// which returns a channel (stream) of PCMFrames
type AudioSourceDevice interface {
	// Get the stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the returned channel.
	GetStream() <-chan frame.PCMFrame

	// Meaningfully close the AudioSourceDevice, including any cleanup of
	// memory and closing of channels.
	//
	// It is assumed that once closed, this device will transmit no more information.
	Close()

	GetDeviceProperties() DeviceProperties
}

// Interface for audio sink devices, e.g. a file or a network track
//
// Sink devices need only define some way to consume data,
// taken as a channel (stream) of PCMFrames
type AudioSinkDevice interface {
	// Set the source stream of this audio device.
	//
	// Raw audio data (as PCMFrames) will arrive on the given channel.
	//
	// When this stream is closed, it is assumed the device will be cleaned up
	// (memory will be freed, other channels will be closed, etc)
	SetStream(sourceStream <-chan frame.PCMFrame)

	GetDeviceProperties() DeviceProperties

	// Sink devices close themselves when their source stream closes, so that
	// closing the head of a pipeline cascades down to every sink.
	// A sink that is still receiving must never be closed directly, as the
	// upstream device would then send on a closed channel.
}

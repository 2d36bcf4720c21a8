package audioapi

import (
	"errors"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice/device"
)

var errNoPipeline = errors.New("no stream output device was opened")

type StreamOptions struct {
	// Format of the rendered stream and of the wav file.
	Properties audiodevice.DeviceProperties

	// See device.StreamOutputOptions
	Paced     bool
	MaxFrames int64

	// Write the mix to this .wav file, if set.
	WavFile string

	// Send the mix to this WebRTC track as PCMU, if set.
	WebRTCTrack device.SampleWriter

	// Gain of the monitor stage all sinks listen behind.
	MonitorGain float32
}

// Renders the mix into a pipeline of stream devices instead of a sound card:
//
//	StreamOutputDevice -> AudioAugmentationDevice -> FanOutDevice -+-> FileAudioOutputDevice
//	                                                               +-> AudioFormatConversionDevice -> WebRTCAudioSinkDevice
//
// With neither a wav file nor a track configured the stream is drained by a dummy sink.
type StreamAudioIODeviceAPI struct {
	options StreamOptions

	mutex    sync.Mutex
	pipeline *StreamPipeline
}

func NewStreamAudioIODeviceAPI(options StreamOptions) *StreamAudioIODeviceAPI {
	if options.MonitorGain == 0 {
		options.MonitorGain = 1.0
	}
	return &StreamAudioIODeviceAPI{
		options: options,
	}
}

func (api *StreamAudioIODeviceAPI) Name() string {
	return "stream"
}

func (api *StreamAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:               0,
			Name:             "stream",
			DeviceProperties: api.options.Properties,
		},
	}
}

func (api *StreamAudioIODeviceAPI) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.OutputDevice, error) {
	if id.ID != 0 {
		return nil, errNoDeviceWithID
	}
	return api.InitDefaultOutputDevice()
}

// Build a new pipeline. Only the most recent pipeline is tracked by Pipeline and Wait.
func (api *StreamAudioIODeviceAPI) InitDefaultOutputDevice() (audiodevice.OutputDevice, error) {
	p, err := newStreamPipeline(api.options)
	if err != nil {
		return nil, err
	}

	api.mutex.Lock()
	api.pipeline = p
	api.mutex.Unlock()
	return p.Output, nil
}

// The most recently opened pipeline, nil before the first.
func (api *StreamAudioIODeviceAPI) Pipeline() *StreamPipeline {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return api.pipeline
}

// Wait for the most recent pipeline to drain, see StreamPipeline.Wait.
func (api *StreamAudioIODeviceAPI) Wait() error {
	p := api.Pipeline()
	if p == nil {
		return errNoPipeline
	}
	return p.Wait()
}

// --------------------------------------------------------------------------------

type StreamPipeline struct {
	Output  *device.StreamOutputDevice
	Monitor *device.AudioAugmentationDevice

	fanOut *device.FanOutDevice
	file   *device.FileAudioOutputDevice
	webrtc *device.WebRTCAudioSinkDevice
}

func newStreamPipeline(options StreamOptions) (*StreamPipeline, error) {
	properties := options.Properties

	// Everything that can fail happens before any stream is connected
	var conversion *device.AudioFormatConversionDevice
	if options.WebRTCTrack != nil {
		var err error
		conversion, err = device.NewAudioFormatConversionDevice(properties, device.PCMUDeviceProperties)
		if err != nil {
			return nil, err
		}
	}
	var file *device.FileAudioOutputDevice
	if options.WavFile != "" {
		var err error
		file, err = device.NewFileAudioOutputDevice(options.WavFile, properties)
		if err != nil {
			return nil, err
		}
	}

	p := &StreamPipeline{
		Output: device.NewStreamOutputDevice(properties, device.StreamOutputOptions{
			Paced:     options.Paced,
			MaxFrames: options.MaxFrames,
		}),
		Monitor: device.NewAudioAugmentationDevice(properties),
		fanOut:  device.NewFanOutDevice(properties),
		file:    file,
	}
	p.Monitor.SetGain(options.MonitorGain)
	p.fanOut.SetLossless(!options.Paced)

	if file != nil {
		file.SetStream(p.fanOut.GetStream())
	}
	if conversion != nil {
		p.webrtc = device.NewWebRTCAudioSinkDevice(options.WebRTCTrack)
		conversion.SetStream(p.fanOut.GetStream())
		p.webrtc.SetStream(conversion.GetStream())
	}
	if file == nil && conversion == nil {
		device.NewDummyAudioSinkDevice(properties).SetStream(p.fanOut.GetStream())
	}

	p.fanOut.SetStream(p.Monitor.GetStream())
	p.Monitor.SetStream(p.Output.GetStream())
	return p, nil
}

// Blocks until the output device is closed (or reached its frame limit) and every
// sink has drained. Returns the error of the wav file, if any.
func (p *StreamPipeline) Wait() error {
	<-p.Output.Done()
	if p.webrtc != nil {
		<-p.webrtc.Done()
	}
	if p.file != nil {
		return p.file.WaitForClose()
	}
	return nil
}

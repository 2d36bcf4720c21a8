package device

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

// An OutputDevice that renders and discards buffers.
//
// With pacing enabled it asks for one buffer per buffer period, like a sound card would.
// Without pacing it renders as fast as possible, which is useful in tests.
type DummyOutputDevice struct {
	paced bool

	mutex   sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	buffersRendered atomic.Int64
	closed          atomic.Bool
}

func NewDummyOutputDevice(paced bool) *DummyOutputDevice {
	return &DummyOutputDevice{paced: paced}
}

func (d *DummyOutputDevice) Name() string {
	return "Dummy (no sound output)"
}

// The dummy device takes whatever the renderer produces.
func (d *DummyOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  0,
		NumChannels: frame.DefaultChannels,
	}
}

func (d *DummyOutputDevice) Start(r audiodevice.Renderer) error {
	if d.closed.Load() {
		return errDeviceClosed
	}
	d.Stop()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stop = make(chan struct{})
	d.stopped = make(chan struct{})
	go d.loop(r, d.stop, d.stopped)
	return nil
}

func (d *DummyOutputDevice) loop(r audiodevice.Renderer, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	var tick <-chan time.Time
	if d.paced {
		ticker := time.NewTicker(bufferPeriod(r))
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		r.RenderNextBuffer()
		d.buffersRendered.Add(1)
	}
}

func (d *DummyOutputDevice) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.stopped
	d.stop = nil
	d.stopped = nil
}

func (d *DummyOutputDevice) Close() error {
	d.closed.Store(true)
	d.Stop()
	return nil
}

// Number of buffers rendered since creation.
func (d *DummyOutputDevice) BuffersRendered() int64 {
	return d.buffersRendered.Load()
}

// --------------------------------------------------------------------------------

// An AudioSinkDevice that consumes all frames without any further actions.
type DummyAudioSinkDevice struct {
	properties audiodevice.DeviceProperties
	frames     atomic.Int64
}

func NewDummyAudioSinkDevice(properties audiodevice.DeviceProperties) *DummyAudioSinkDevice {
	return &DummyAudioSinkDevice{
		properties: properties,
	}
}

func (d *DummyAudioSinkDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		for range sourceStream {
			d.frames.Add(1)
		}
	}()
}

// Number of PCMFrames consumed.
func (d *DummyAudioSinkDevice) FramesConsumed() int64 {
	return d.frames.Load()
}

func (d *DummyAudioSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// --------------------------------------------------------------------------------

// The wall clock duration of one buffer of r.
func bufferPeriod(r audiodevice.Renderer) time.Duration {
	rate := r.SampleRate()
	if rate <= 0 {
		return time.Millisecond
	}
	return time.Duration(r.FramesPerAudioBuffer()) * time.Second / time.Duration(rate)
}

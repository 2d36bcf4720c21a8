package device

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/google/uuid"
)

type StreamOutputOptions struct {
	// Render one buffer per buffer period of wall clock time. A paced device drops
	// buffers its consumers are not ready for, an unpaced one blocks on them.
	Paced bool

	// Stop after rendering this many frames of the renderer and close the stream.
	// 0 renders until Close.
	MaxFrames int64
}

// StreamOutputDevice is an OutputDevice whose output is a stream of PCMFrames,
// converted to the device properties. Anything implementing AudioSinkDevice can
// consume it, e.g. a FileAudioOutputDevice or a FanOutDevice, so the mix can be
// written to disk or sent over the network.
//
// Closing the device closes the stream, which in turn closes every device downstream.
type StreamOutputDevice struct {
	logger     *slog.Logger
	properties audiodevice.DeviceProperties
	options    StreamOutputOptions

	sinkStream chan frame.PCMFrame

	mutex   sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	framesRendered atomic.Int64
	finished       atomic.Bool
	done           chan struct{}
	closeOnce      sync.Once
}

func NewStreamOutputDevice(properties audiodevice.DeviceProperties, options StreamOutputOptions) *StreamOutputDevice {
	return &StreamOutputDevice{
		logger: slog.Default().With(
			"stream output device uuid", uuid.New(),
		),
		properties: properties,
		options:    options,
		sinkStream: make(chan frame.PCMFrame),
		done:       make(chan struct{}),
	}
}

func (d *StreamOutputDevice) Name() string {
	return "stream"
}

func (d *StreamOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// Rendered audio arrives on the returned channel, one PCMFrame per mixer buffer.
func (d *StreamOutputDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

// Closed once the stream is closed, either by Close or by reaching MaxFrames.
func (d *StreamOutputDevice) Done() <-chan struct{} {
	return d.done
}

// Number of renderer frames rendered so far.
func (d *StreamOutputDevice) FramesRendered() int64 {
	return d.framesRendered.Load()
}

func (d *StreamOutputDevice) Start(r audiodevice.Renderer) error {
	if d.finished.Load() {
		return errDeviceClosed
	}
	d.Stop()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stop = make(chan struct{})
	d.stopped = make(chan struct{})
	go d.loop(r, d.stop, d.stopped)
	d.logger.Debug("stream output device started", "paced", d.options.Paced)
	return nil
}

func (d *StreamOutputDevice) loop(r audiodevice.Renderer, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	converter := newBufferConverter(d.properties.NumChannels, r.SampleRate(), d.properties.SampleRate, r.FramesPerAudioBuffer())

	var tick <-chan time.Time
	if d.options.Paced {
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
		}

		buf := r.RenderNextBuffer()
		pcm := append(frame.PCMFrame(nil), converter.convert(buf)...)
		rendered := d.framesRendered.Add(int64(len(buf)))

		if d.options.Paced {
			select {
			case d.sinkStream <- pcm:
			case <-stop:
				return
			default:
				d.logger.Warn("stream consumer not ready, dropping buffer")
			}
		} else {
			select {
			case d.sinkStream <- pcm:
			case <-stop:
				return
			}
		}

		if d.options.MaxFrames > 0 && rendered >= d.options.MaxFrames {
			d.logger.Debug("rendered requested frames", "frames", rendered)
			d.finish()
			return
		}
	}
}

func (d *StreamOutputDevice) Stop() {
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

// Stop rendering and close the stream.
func (d *StreamOutputDevice) Close() error {
	d.Stop()
	d.finish()
	return nil
}

func (d *StreamOutputDevice) finish() {
	d.closeOnce.Do(func() {
		d.finished.Store(true)
		close(d.sinkStream)
		close(d.done)
	})
}

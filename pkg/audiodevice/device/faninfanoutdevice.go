package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/google/uuid"
)

const (
	// A sink that accepts no frame for this long is dropped.
	fanOutSinkTimeout = 5 * time.Second

	// Frames held for a sink that is momentarily slower than the source.
	fanOutSinkBuffer = 8
)

// --------------------------------------------------------------------------------
// Fan Out Device (One to Many)

// A FanOutDevice is both an AudioSourceDevice and an AudioSinkDevice.
//
// Unlike other AudioSourceDevices, a call to GetStream does *not* return the
// singular output stream, but instead creates a *new* output stream unique to that call.
// A sink stream is closed and removed if it does not accept a frame for fanOutSinkTimeout.
//
// Every sink receives its own copy of each frame, so sinks may modify what they receive.
// A sink that is full when a frame arrives misses that frame, unless the device is
// lossless, in which case the device waits for it (up to the timeout).
//
// Be sure to call GetStream for every consumer before data flows, or early frames
// are not seen by late consumers.
type FanOutDevice struct {
	logger           *slog.Logger
	deviceProperties audiodevice.DeviceProperties

	// Cancels every sink at once, sink contexts are children of this one.
	masterContext               context.Context
	masterContextCancelFunction context.CancelFunc

	sourceStream <-chan frame.PCMFrame

	sinksMutex sync.Mutex
	sinks      []*fanOutSink
	closed     bool
	lossless   bool
}

type fanOutSink struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	stream    chan frame.PCMFrame
}

// Create a new FanOutDevice.
// The given device properties are for book-keeping only.
func NewFanOutDevice(properties audiodevice.DeviceProperties) *FanOutDevice {
	masterContext, masterContextCancelFunction := context.WithCancel(context.Background())
	return &FanOutDevice{
		logger:                      slog.Default().With("fan out device uuid", uuid.New()),
		deviceProperties:            properties,
		masterContext:               masterContext,
		masterContextCancelFunction: masterContextCancelFunction,
	}
}

// Return a context with a fresh timeout that is still canceled with the masterContext.
func (d *FanOutDevice) newSinkContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.masterContext, fanOutSinkTimeout)
}

// Wait for slow sinks instead of dropping frames for them, e.g. when rendering to a file.
// Must be set before SetStream.
func (d *FanOutDevice) SetLossless(lossless bool) {
	d.lossless = lossless
}

func (d *FanOutDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// Set the stream of this device to copy data from.
// Once the sourceStream is closed, all sink streams are closed.
func (d *FanOutDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	d.sourceStream = sourceStream

	go func() {
		for data := range d.sourceStream {
			d.forward(data)
		}
		d.Close()
	}()
}

func (d *FanOutDevice) forward(data frame.PCMFrame) {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()

	kept := d.sinks[:0]
	for _, sink := range d.sinks {
		if d.send(sink, append(frame.PCMFrame(nil), data...)) {
			kept = append(kept, sink)
			continue
		}
		d.logger.Warn("removing unresponsive sink")
		sink.ctxCancel()
		close(sink.stream)
	}
	clear(d.sinks[len(kept):])
	d.sinks = kept
}

// Returns false once the sink has timed out.
func (d *FanOutDevice) send(sink *fanOutSink, data frame.PCMFrame) bool {
	if d.lossless {
		select {
		case sink.stream <- data:
		case <-sink.ctx.Done():
			return false
		}
	} else {
		select {
		case sink.stream <- data:
		case <-sink.ctx.Done():
			return false
		default:
			// Full but not timed out yet, the frame is dropped for this sink
			return true
		}
	}
	sink.ctxCancel()
	sink.ctx, sink.ctxCancel = d.newSinkContext()
	return true
}

// Get a new stream from this fan out device.
//
// The returned channel must consume data as it arrives, otherwise it is closed
// after fanOutSinkTimeout. On a closed device the returned stream is already closed.
func (d *FanOutDevice) GetStream() <-chan frame.PCMFrame {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()

	stream := make(chan frame.PCMFrame, fanOutSinkBuffer)
	if d.closed {
		close(stream)
		return stream
	}

	sinkCtx, sinkCtxCancel := d.newSinkContext()
	d.sinks = append(d.sinks, &fanOutSink{
		ctx:       sinkCtx,
		ctxCancel: sinkCtxCancel,
		stream:    stream,
	})
	return stream
}

// Number of sinks currently attached.
func (d *FanOutDevice) NumSinks() int {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	return len(d.sinks)
}

func (d *FanOutDevice) Close() {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.masterContextCancelFunction()
	for _, sink := range d.sinks {
		sink.ctxCancel()
		close(sink.stream)
	}
	d.sinks = nil
}

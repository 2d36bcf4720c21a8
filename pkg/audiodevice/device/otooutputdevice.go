package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

const bytesPerFloat32 = 4

var (
	errDeviceClosed = errors.New("device is closed")

	// Oto supports a single context per process, whose format is fixed once created.
	ErrOtoFormatMismatch = errors.New("oto context already created with a different format")
)

var (
	otoMutex      sync.Mutex
	otoContext    *oto.Context
	otoProperties audiodevice.DeviceProperties
)

// Create the process wide oto context on first use, or return it when the
// requested properties match the ones it was created with.
func acquireOtoContext(properties audiodevice.DeviceProperties, bufferDuration time.Duration) (*oto.Context, error) {
	otoMutex.Lock()
	defer otoMutex.Unlock()

	if otoContext != nil {
		if otoProperties != properties {
			return nil, fmt.Errorf("%w: have %+v, want %+v", ErrOtoFormatMismatch, otoProperties, properties)
		}
		return otoContext, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   properties.SampleRate,
		ChannelCount: properties.NumChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferDuration,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	otoContext = ctx
	otoProperties = properties
	return ctx, nil
}

// OtoOutputDevice is an OutputDevice that plays the mix to the speakers using oto.
//
// Oto pulls bytes from the device from its own goroutine. Each pull renders as many
// mixer buffers as needed, so the sound card sets the render cadence.
type OtoOutputDevice struct {
	logger *slog.Logger

	properties audiodevice.DeviceProperties
	context    *oto.Context
	player     *oto.Player

	// Guards renderer and the conversion state, held for the duration of a Read.
	mutex     sync.Mutex
	renderer  audiodevice.Renderer
	converter *bufferConverter
	pending   []byte
	offset    int

	closeOnce sync.Once
}

// Create an output device on the default sound card.
// bufferDuration is the latency oto buffers for, 0 lets oto choose.
func NewOtoOutputDevice(properties audiodevice.DeviceProperties, bufferDuration time.Duration) (*OtoOutputDevice, error) {
	logger := slog.Default().With(
		"oto output device uuid", uuid.New(),
	)

	ctx, err := acquireOtoContext(properties, bufferDuration)
	if err != nil {
		logger.Error("failed to create oto context", "err", err)
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	logger.Debug(
		"initialized oto output device",
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
		"bufferDuration", bufferDuration,
	)

	d := &OtoOutputDevice{
		logger:     logger,
		properties: properties,
		context:    ctx,
	}
	d.player = ctx.NewPlayer(d)
	return d, nil
}

func (d *OtoOutputDevice) Name() string {
	return "oto"
}

func (d *OtoOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

func (d *OtoOutputDevice) Start(r audiodevice.Renderer) error {
	if err := d.context.Err(); err != nil {
		return err
	}

	d.mutex.Lock()
	d.renderer = r
	d.converter = nil
	d.pending = d.pending[:0]
	d.offset = 0
	d.mutex.Unlock()

	d.player.Play()
	d.logger.Info("oto output device started")
	return nil
}

func (d *OtoOutputDevice) Stop() {
	d.player.Pause()

	// Waits for a Read in progress
	d.mutex.Lock()
	d.renderer = nil
	d.mutex.Unlock()
}

func (d *OtoOutputDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.Stop()
		err = d.player.Close()
		d.logger.Debug("oto output device closed")
	})
	return err
}

// Read implements io.Reader for the oto player, rendering mixer buffers on demand
// as float32 little endian samples. Without a renderer it reads silence.
func (d *OtoOutputDevice) Read(p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Keep whole samples, oto reads in multiples of the frame size anyway
	p = p[:len(p)-len(p)%bytesPerFloat32]

	if d.renderer == nil {
		clear(p)
		return len(p), nil
	}

	n := 0
	for n < len(p) {
		if d.offset == len(d.pending) {
			d.renderPending()
		}
		c := copy(p[n:], d.pending[d.offset:])
		d.offset += c
		n += c
	}
	return n, nil
}

// Render one mixer buffer into the pending bytes.
func (d *OtoOutputDevice) renderPending() {
	r := d.renderer
	if d.converter == nil || !d.converter.matches(r.SampleRate(), r.FramesPerAudioBuffer()) {
		d.converter = newBufferConverter(
			d.properties.NumChannels,
			r.SampleRate(),
			d.properties.SampleRate,
			r.FramesPerAudioBuffer(),
		)
	}

	samples := d.converter.convert(r.RenderNextBuffer())
	need := len(samples) * bytesPerFloat32
	if cap(d.pending) < need {
		d.pending = make([]byte, need)
	}
	d.pending = d.pending[:need]
	d.offset = 0
	for i, s := range samples {
		binary.LittleEndian.PutUint32(d.pending[i*bytesPerFloat32:], math.Float32bits(s))
	}
}

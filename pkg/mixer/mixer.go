// Package mixer is the real-time core of the engine.
//
// The Mixer owns the set of playing play handles and the registered audio ports.
// Once per buffer the output device calls RenderNextBuffer, which renders every
// handle, routes the result through its port, sums the ports, applies the master gain
// and hands back the mixed surround buffer.
//
// All state consulted by a render pass is guarded by a single lock, taken once per pass
// and by every configuration change through Pause and Play.
// Play handles are the exception: AddPlayHandle and RemovePlayHandle only queue the
// change, which the next pass picks up at its start.
package mixer

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/midiclient"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"github.com/google/uuid"
)

var _ audiodevice.Renderer = (*Mixer)(nil)

type Mixer struct {
	logger *slog.Logger
	config Config

	// The render-path lock. Held for the whole of every render pass, and between
	// Pause and Play by every configuration change.
	mixMutex sync.Mutex

	// Guards the queued handle changes, which any goroutine may add to.
	handlesMutex  sync.Mutex
	pendingAdd    []playhandle.PlayHandle
	pendingRemove map[playhandle.PlayHandle]struct{}

	// Serializes device, quality and MIDI client changes.
	// Always taken before mixMutex, never while holding it.
	configMutex sync.Mutex
	device      audiodevice.OutputDevice
	oldDevice   audiodevice.OutputDevice
	midiClient  midiclient.Client

	// Everything below is guarded by mixMutex.

	playHandles []playhandle.PlayHandle
	// Handles to purge at the end of the current pass.
	removing map[playhandle.PlayHandle]struct{}

	ports      []*audioport.Port
	masterPort *audioport.Port
	masterGain float32

	numChannels int
	workers     int

	buffers [2][]frame.SurroundFrame
	jobs    []renderJob
	scratch [][]frame.SampleFrame

	// Read without the lock by devices and observers.
	current         atomic.Int32
	qualityLevel    atomic.Int32
	sampleRate      atomic.Int64
	framesPerBuffer atomic.Int64
	cpuLoad         atomic.Int32

	observersMutex      sync.Mutex
	nextBufferObservers []func([]frame.SurroundFrame)
	sampleRateObservers []func(int)
}

// Create a mixer without an output device. cfg must be valid.
func newMixer(cfg Config) *Mixer {
	m := &Mixer{
		logger:        slog.Default().With("mixer uuid", uuid.New()),
		config:        cfg,
		pendingRemove: make(map[playhandle.PlayHandle]struct{}),
		removing:      make(map[playhandle.PlayHandle]struct{}),
		masterPort:    audioport.NewPort("master", frame.UnitVolumeVector()),
		masterGain:    cfg.MasterGain,
		numChannels:   cfg.numChannels(),
		workers:       cfg.Workers,
	}
	// Force the first applyQualityLevel to size everything
	m.qualityLevel.Store(-1)
	m.applyQualityLevel(cfg.qualityLevel())

	m.logger.Info("mixer created",
		"sampleRate", m.SampleRate(),
		"framesPerBuffer", m.FramesPerAudioBuffer(),
		"channels", m.numChannels,
		"workers", m.workers,
	)
	return m
}

// --------------------------------------------------------------------------------

// Take the render-path lock. Blocks until the render pass in flight, if any, completes,
// and keeps further passes from starting until Play.
//
// Never call Pause while holding it already, and never stop or start an output
// device between Pause and Play: the device may be waiting for the lock.
func (m *Mixer) Pause() {
	m.mixMutex.Lock()
}

// Release the render-path lock taken by Pause.
func (m *Mixer) Play() {
	m.mixMutex.Unlock()
}

// --------------------------------------------------------------------------------

func (m *Mixer) SampleRate() int {
	return int(m.sampleRate.Load())
}

func (m *Mixer) FramesPerAudioBuffer() int {
	return int(m.framesPerBuffer.Load())
}

func (m *Mixer) QualityLevel() QualityLevel {
	return QualityLevel(m.qualityLevel.Load())
}

func (m *Mixer) HighQuality() bool {
	return m.QualityLevel() == QualityHigh
}

// Number of surround channels mixed, 2 or 4.
func (m *Mixer) NumChannels() int {
	return m.numChannels
}

// Percentage of the buffer period spent rendering, smoothed over recent passes.
// Values near 100 mean the engine is about to miss its deadline.
func (m *Mixer) CPULoad() int {
	return int(m.cpuLoad.Load())
}

// The buffer produced by the latest render pass. Valid until the next pass.
func (m *Mixer) CurrentAudioBuffer() []frame.SurroundFrame {
	return m.buffers[m.current.Load()]
}

func (m *Mixer) MasterGain() float32 {
	m.mixMutex.Lock()
	defer m.mixMutex.Unlock()
	return m.masterGain
}

// Negative gains are treated as silence.
func (m *Mixer) SetMasterGain(gain float32) {
	m.Pause()
	m.masterGain = max(gain, 0)
	m.Play()
}

// --------------------------------------------------------------------------------

// Register a port, sized for the current quality level. Adding a registered port is a no-op.
func (m *Mixer) AddAudioPort(port *audioport.Port) {
	if port == nil {
		return
	}
	m.Pause()
	defer m.Play()

	if slices.Contains(m.ports, port) {
		return
	}
	port.Resize(m.FramesPerAudioBuffer(), m.numChannels)
	port.Clear()
	m.ports = append(m.ports, port)
}

// Unregister a port. Removing a port that is not registered is a no-op.
// Sound routed to an unregistered port is dropped.
func (m *Mixer) RemoveAudioPort(port *audioport.Port) {
	m.Pause()
	defer m.Play()

	i := slices.Index(m.ports, port)
	if i < 0 {
		return
	}
	m.ports = slices.Delete(m.ports, i, i+1)
	port.Resize(0, m.numChannels)
}

// A copy of the registered ports, in registration order.
func (m *Mixer) AudioPorts() []*audioport.Port {
	m.mixMutex.Lock()
	defer m.mixMutex.Unlock()
	return slices.Clone(m.ports)
}

func (m *Mixer) SetPortVolume(port *audioport.Port, volume frame.VolumeVector) {
	m.Pause()
	port.SetVolume(volume)
	m.Play()
}

// Mix frames of buf into port, or into the master port if port is nil, starting
// framesAhead frames into the current buffer and scaled by volume.
//
// Only call from within a render pass or between Pause and Play.
func (m *Mixer) BufferToPort(buf []frame.SampleFrame, frames int, framesAhead int, volume frame.VolumeVector, port *audioport.Port) {
	if port == nil {
		port = m.masterPort
	}
	if port.FramesPerBuffer() != m.FramesPerAudioBuffer() {
		return
	}
	port.Mix(buf, frames, framesAhead, volume)
}

// --------------------------------------------------------------------------------

// Queue a handle to join the active set at the start of the next render pass.
// Safe to call from any goroutine, including from within a render pass.
//
// Handles must be comparable, in practice pointers.
func (m *Mixer) AddPlayHandle(h playhandle.PlayHandle) {
	if h == nil {
		return
	}
	m.handlesMutex.Lock()
	m.pendingAdd = append(m.pendingAdd, h)
	m.handlesMutex.Unlock()
}

// Queue a handle for removal. The handle is rendered in exactly one more pass,
// then purged. Safe to call from any goroutine.
func (m *Mixer) RemovePlayHandle(h playhandle.PlayHandle) {
	if h == nil {
		return
	}
	m.handlesMutex.Lock()
	m.pendingRemove[h] = struct{}{}
	m.handlesMutex.Unlock()
}

// Snapshot of the active handles, followed by those queued to join.
func (m *Mixer) PlayHandles() []playhandle.PlayHandle {
	m.mixMutex.Lock()
	handles := slices.Clone(m.playHandles)
	m.mixMutex.Unlock()

	m.handlesMutex.Lock()
	handles = append(handles, m.pendingAdd...)
	m.handlesMutex.Unlock()
	return handles
}

// Report whether nothing is sounding or about to sound: every play handle,
// active or queued, has finished.
func (m *Mixer) HaveNoRunningNotes() bool {
	for _, h := range m.PlayHandles() {
		if !h.IsFinished() {
			return false
		}
	}
	return true
}

// Silence the engine: drop every play handle, active or queued, and clear all buffers.
//
// With everything set, additionally unregister every port and reset the master gain
// to its configured value, returning to the state after creation.
// Devices and the MIDI client are kept.
func (m *Mixer) Clear(everything bool) {
	m.Pause()
	defer m.Play()

	m.handlesMutex.Lock()
	clear(m.pendingAdd)
	m.pendingAdd = m.pendingAdd[:0]
	clear(m.pendingRemove)
	m.handlesMutex.Unlock()

	clear(m.playHandles)
	m.playHandles = m.playHandles[:0]
	clear(m.removing)

	for _, buf := range m.buffers {
		frame.ClearSurroundBuffer(buf)
	}
	for _, p := range m.ports {
		p.Clear()
	}
	m.masterPort.Clear()

	if everything {
		for _, p := range m.ports {
			p.Resize(0, m.numChannels)
		}
		clear(m.ports)
		m.ports = m.ports[:0]
		m.masterGain = m.config.MasterGain
	}
	m.logger.Debug("mixer cleared", "everything", everything)
}

// --------------------------------------------------------------------------------

// Call fn with every new buffer, right after the pass producing it.
// fn runs on the render path and must return quickly.
func (m *Mixer) OnNextAudioBuffer(fn func(buf []frame.SurroundFrame)) {
	m.observersMutex.Lock()
	m.nextBufferObservers = append(m.nextBufferObservers, fn)
	m.observersMutex.Unlock()
}

// Call fn with the new sample rate whenever the quality level changes it.
func (m *Mixer) OnSampleRateChanged(fn func(sampleRate int)) {
	m.observersMutex.Lock()
	m.sampleRateObservers = append(m.sampleRateObservers, fn)
	m.observersMutex.Unlock()
}

func (m *Mixer) notifyNextAudioBuffer(buf []frame.SurroundFrame) {
	m.observersMutex.Lock()
	observers := m.nextBufferObservers
	m.observersMutex.Unlock()
	for _, fn := range observers {
		fn(buf)
	}
}

func (m *Mixer) notifySampleRateChanged() {
	rate := m.SampleRate()
	m.logger.Info("sample rate changed", "sampleRate", rate, "framesPerBuffer", m.FramesPerAudioBuffer())

	m.observersMutex.Lock()
	observers := slices.Clone(m.sampleRateObservers)
	m.observersMutex.Unlock()
	for _, fn := range observers {
		fn(rate)
	}
}

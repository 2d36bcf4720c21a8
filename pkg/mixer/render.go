package mixer

import (
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"golang.org/x/sync/errgroup"
)

// One play handle's share of a render pass.
type renderJob struct {
	handle      playhandle.PlayHandle
	buf         []frame.SampleFrame
	frames      int
	framesAhead int
	parallel    bool

	produced int
	err      error
}

func (j *renderJob) render() {
	j.produced, j.err = j.handle.Render(j.buf, j.frames)
	j.produced = min(max(j.produced, 0), j.frames)
}

// Produce the next mixed buffer and make it current.
//
// The returned buffer holds FramesPerAudioBuffer surround frames, every sample
// clipped to [-1, 1]. It is read-only and stays valid until the next call.
// Called by the output device, one call at a time.
func (m *Mixer) RenderNextBuffer() []frame.SurroundFrame {
	start := time.Now()

	m.mixMutex.Lock()
	m.collectPendingHandles()

	next := m.buffers[1-m.current.Load()]
	frame.ClearSurroundBuffer(next)

	m.renderPlayHandles()
	m.mixPorts(next)
	m.current.Store(1 - m.current.Load())
	m.purgePlayHandles()

	rate, framesPerBuffer := m.SampleRate(), m.FramesPerAudioBuffer()
	m.mixMutex.Unlock()

	m.updateCPULoad(time.Since(start), framesPerBuffer, rate)
	m.notifyNextAudioBuffer(next)
	return next
}

// Bring in the handles queued since the last pass, and take the removals queued since
// then as the set to purge at the end of this pass.
func (m *Mixer) collectPendingHandles() {
	m.handlesMutex.Lock()
	defer m.handlesMutex.Unlock()

	m.playHandles = append(m.playHandles, m.pendingAdd...)
	clear(m.pendingAdd)
	m.pendingAdd = m.pendingAdd[:0]

	for h := range m.pendingRemove {
		m.removing[h] = struct{}{}
	}
	clear(m.pendingRemove)
}

func (m *Mixer) renderPlayHandles() {
	framesPerBuffer := m.FramesPerAudioBuffer()

	for len(m.scratch) < len(m.playHandles) {
		m.scratch = append(m.scratch, make([]frame.SampleFrame, framesPerBuffer))
	}

	m.jobs = m.jobs[:0]
	numParallel := 0
	for i, h := range m.playHandles {
		if h.IsFinished() {
			continue
		}
		framesAhead := min(playhandle.FramesAheadOf(h), framesPerBuffer)
		j := renderJob{
			handle:      h,
			buf:         m.scratch[i],
			frames:      framesPerBuffer - framesAhead,
			framesAhead: framesAhead,
			parallel:    m.workers > 1 && playhandle.CanParallelize(h),
		}
		frame.ClearAudioBuffer(j.buf[:j.frames])
		if j.parallel {
			numParallel++
		}
		m.jobs = append(m.jobs, j)
	}

	if numParallel > 0 {
		var group errgroup.Group
		group.SetLimit(m.workers)
		for i := range m.jobs {
			if j := &m.jobs[i]; j.parallel {
				group.Go(func() error {
					j.render()
					return nil
				})
			}
		}
		for i := range m.jobs {
			if j := &m.jobs[i]; !j.parallel {
				j.render()
			}
		}
		group.Wait()
	} else {
		for i := range m.jobs {
			m.jobs[i].render()
		}
	}

	for i := range m.jobs {
		j := &m.jobs[i]
		if j.err != nil {
			m.logger.Warn("play handle failed, removing it", "err", j.err)
			m.removing[j.handle] = struct{}{}
		}
		m.BufferToPort(j.buf, j.produced, j.framesAhead, m.routeVolume(j.handle), playhandle.PortOf(j.handle))
		j.handle = nil
	}
}

// Handles mix through their port's volume, unrouted ones at unit volume into the master port.
func (m *Mixer) routeVolume(h playhandle.PlayHandle) frame.VolumeVector {
	if port := playhandle.PortOf(h); port != nil {
		return port.Volume()
	}
	return frame.UnitVolumeVector()
}

// Sum every port's current period into out, apply the master gain and clip.
func (m *Mixer) mixPorts(out []frame.SurroundFrame) {
	for _, p := range m.ports {
		m.addPort(out, p.Buffer())
		p.NextPeriod()
	}
	m.addPort(out, m.masterPort.Buffer())
	m.masterPort.NextPeriod()

	gain := m.masterGain
	for i := range out {
		f := &out[i]
		for c := range m.numChannels {
			f[c] = frame.Clip(f[c] * gain)
		}
		// A stereo engine plays the front pair on the rear channels too, so that
		// downmixing restores its level.
		if m.numChannels == frame.DefaultChannels {
			f[2], f[3] = f[0], f[1]
		}
	}
}

func (m *Mixer) addPort(out []frame.SurroundFrame, buf []frame.SurroundFrame) {
	n := min(len(out), len(buf))
	for i := range n {
		for c := range m.numChannels {
			out[i][c] += buf[i][c]
		}
	}
}

// Drop every handle that finished, failed or was queued for removal before this pass.
func (m *Mixer) purgePlayHandles() {
	kept := m.playHandles[:0]
	for _, h := range m.playHandles {
		if _, removed := m.removing[h]; removed || h.IsFinished() {
			continue
		}
		kept = append(kept, h)
	}
	clear(m.playHandles[len(kept):])
	m.playHandles = kept
	clear(m.removing)
}

// Exponential moving average of the share of the buffer period spent rendering.
func (m *Mixer) updateCPULoad(elapsed time.Duration, framesPerBuffer int, sampleRate int) {
	if framesPerBuffer <= 0 || sampleRate <= 0 {
		return
	}
	period := time.Duration(framesPerBuffer) * time.Second / time.Duration(sampleRate)
	load := int32(min(elapsed*100/period, 100))
	m.cpuLoad.Store((m.cpuLoad.Load()*3 + load) / 4)
}

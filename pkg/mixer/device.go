package mixer

import (
	"errors"
	"fmt"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/midiclient"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
)

// Switch to level, resizing every buffer. Requires the render-path lock.
// Returns whether anything changed.
func (m *Mixer) applyQualityLevel(level QualityLevel) bool {
	if QualityLevel(m.qualityLevel.Load()) == level {
		return false
	}
	rate := SampleRates[level]
	framesPerBuffer := m.config.FramesPerBuffer * rate / SampleRates[QualityDefault]

	m.qualityLevel.Store(int32(level))
	m.sampleRate.Store(int64(rate))
	m.framesPerBuffer.Store(int64(framesPerBuffer))

	for i := range m.buffers {
		m.buffers[i] = make([]frame.SurroundFrame, framesPerBuffer)
	}
	m.scratch = nil
	for _, p := range m.ports {
		p.Resize(framesPerBuffer, m.numChannels)
	}
	m.masterPort.Resize(framesPerBuffer, m.numChannels)

	notify := func(h playhandle.PlayHandle) {
		if l, ok := h.(playhandle.SampleRateListener); ok {
			l.SampleRateChanged(rate)
		}
	}
	for _, h := range m.playHandles {
		notify(h)
	}
	m.handlesMutex.Lock()
	for _, h := range m.pendingAdd {
		notify(h)
	}
	m.handlesMutex.Unlock()
	return true
}

// Switch the quality level, pausing output while buffers are resized.
// Play handles survive the switch and are told the new sample rate.
func (m *Mixer) SetQualityLevel(level QualityLevel) error {
	if !level.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidQualityLevel, level)
	}

	m.configMutex.Lock()
	if m.device != nil {
		m.device.Stop()
	}
	m.Pause()
	changed := m.applyQualityLevel(level)
	m.Play()
	var err error
	if m.device != nil {
		err = m.device.Start(m)
	}
	m.configMutex.Unlock()

	if changed {
		m.notifySampleRateChanged()
	}
	if err != nil {
		return fmt.Errorf("restarting audio device after quality change: %w", err)
	}
	return nil
}

func (m *Mixer) SetHighQuality(on bool) error {
	if on {
		return m.SetQualityLevel(QualityHigh)
	}
	return m.SetQualityLevel(QualityDefault)
}

// Make dev the output device, at the default or high quality level.
//
// The device in use until now is stopped and kept, so RestoreAudioDevice can return to it.
// If dev fails to start, the previous device and quality level are restored and the
// error is returned; dev is left to the caller.
func (m *Mixer) SetAudioDevice(dev audiodevice.OutputDevice, highQuality bool) error {
	if dev == nil {
		return ErrNoAudioDevice
	}
	level := QualityDefault
	if highQuality {
		level = QualityHigh
	}

	m.configMutex.Lock()
	previous := m.device
	previousLevel := m.QualityLevel()
	if previous != nil {
		previous.Stop()
	}

	m.Pause()
	changed := m.applyQualityLevel(level)
	m.Play()

	if err := dev.Start(m); err != nil {
		m.Pause()
		m.applyQualityLevel(previousLevel)
		m.Play()
		if previous != nil {
			err = errors.Join(err, previous.Start(m))
		}
		m.configMutex.Unlock()
		m.logger.Error("could not start audio device", "device", dev.Name(), "err", err)
		return fmt.Errorf("starting audio device %s: %w", dev.Name(), err)
	}

	if previous != dev {
		if m.oldDevice != nil && m.oldDevice != previous && m.oldDevice != dev {
			if err := m.oldDevice.Close(); err != nil {
				m.logger.Warn("error closing retired audio device", "device", m.oldDevice.Name(), "err", err)
			}
		}
		m.oldDevice = previous
	}
	m.device = dev
	m.configMutex.Unlock()

	m.logger.Info("audio device set", "device", dev.Name(), "quality", level)
	if changed {
		m.notifySampleRateChanged()
	}
	return nil
}

// Return to the device that was active before the last successful SetAudioDevice.
// The device being replaced is closed.
func (m *Mixer) RestoreAudioDevice() error {
	m.configMutex.Lock()
	defer m.configMutex.Unlock()

	if m.oldDevice == nil {
		return ErrNoPreviousAudioDevice
	}
	failed := m.device
	if failed != nil {
		failed.Stop()
	}
	if err := m.oldDevice.Start(m); err != nil {
		if failed != nil {
			err = errors.Join(err, failed.Start(m))
		}
		return fmt.Errorf("restoring audio device %s: %w", m.oldDevice.Name(), err)
	}

	m.device, m.oldDevice = m.oldDevice, nil
	m.logger.Info("audio device restored", "device", m.device.Name())
	if failed != nil {
		if err := failed.Close(); err != nil {
			m.logger.Warn("error closing replaced audio device", "device", failed.Name(), "err", err)
		}
	}
	return nil
}

// Name of the active output device, or the empty string if there is none.
func (m *Mixer) AudioDevName() string {
	m.configMutex.Lock()
	defer m.configMutex.Unlock()
	if m.device == nil {
		return ""
	}
	return m.device.Name()
}

// --------------------------------------------------------------------------------

// Replace the MIDI client. The previous client is stopped; starting c is up to the caller.
func (m *Mixer) SetMIDIClient(c midiclient.Client) {
	m.configMutex.Lock()
	defer m.configMutex.Unlock()

	if m.midiClient != nil && m.midiClient != c && m.midiClient.IsRunning() {
		if err := m.midiClient.Stop(); err != nil {
			m.logger.Warn("error stopping MIDI client", "client", m.midiClient.Name(), "err", err)
		}
	}
	m.midiClient = c
}

func (m *Mixer) MIDIClient() midiclient.Client {
	m.configMutex.Lock()
	defer m.configMutex.Unlock()
	return m.midiClient
}

// Name of the MIDI client, or the empty string if there is none.
func (m *Mixer) MIDIClientName() string {
	m.configMutex.Lock()
	defer m.configMutex.Unlock()
	if m.midiClient == nil {
		return ""
	}
	return m.midiClient.Name()
}

// --------------------------------------------------------------------------------

// Stop and release the devices and the MIDI client, and clear all state.
func (m *Mixer) close() error {
	m.configMutex.Lock()
	var errs []error
	if m.device != nil {
		m.device.Stop()
		errs = append(errs, m.device.Close())
	}
	if m.oldDevice != nil && m.oldDevice != m.device {
		errs = append(errs, m.oldDevice.Close())
	}
	if m.midiClient != nil && m.midiClient.IsRunning() {
		errs = append(errs, m.midiClient.Stop())
	}
	m.device, m.oldDevice, m.midiClient = nil, nil, nil
	m.configMutex.Unlock()

	m.Clear(true)
	m.logger.Info("mixer closed")
	return errors.Join(errs...)
}

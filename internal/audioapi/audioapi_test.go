package audioapi

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/go-audio/wav"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("broken backend")

type brokenAPI struct {
	name string
}

func (api brokenAPI) Name() string                  { return api.name }
func (api brokenAPI) OutputDevices() []AudioIODevice { return nil }
func (api brokenAPI) InitOutputDeviceFromID(AudioIODevice) (audiodevice.OutputDevice, error) {
	return nil, errBroken
}
func (api brokenAPI) InitDefaultOutputDevice() (audiodevice.OutputDevice, error) {
	return nil, errBroken
}

type silentRenderer struct {
	buf []frame.SurroundFrame
}

func (r silentRenderer) RenderNextBuffer() []frame.SurroundFrame { return r.buf }
func (r silentRenderer) FramesPerAudioBuffer() int               { return len(r.buf) }
func (r silentRenderer) SampleRate() int                         { return 44100 }

func TestTryAudioDevicesPrefersConfiguredBackend(t *testing.T) {
	dev, api, err := TryAudioDevices("dummy", brokenAPI{"oto"}, NewDummyAudioIODeviceAPI(false))
	require.NoError(t, err)
	assert.Equal(t, "dummy", api.Name())
	assert.IsType(t, &device.DummyOutputDevice{}, dev)
}

func TestTryAudioDevicesFallsBack(t *testing.T) {
	dev, api, err := TryAudioDevices("oto", NewDummyAudioIODeviceAPI(false), brokenAPI{"oto"})
	require.NoError(t, err)
	assert.Equal(t, "dummy", api.Name())
	assert.NotNil(t, dev)
}

func TestTryAudioDevicesAllFail(t *testing.T) {
	_, _, err := TryAudioDevices("oto", brokenAPI{"oto"}, brokenAPI{"other"})
	require.Error(t, err)
	assert.ErrorIs(t, err, audiodevice.ErrNoAudioDevice)
	assert.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "other")
}

func TestDummyAPIRejectsUnknownID(t *testing.T) {
	api := NewDummyAudioIODeviceAPI(false)
	require.Len(t, api.OutputDevices(), 1)
	_, err := api.InitOutputDeviceFromID(AudioIODevice{ID: 3})
	assert.ErrorIs(t, err, errNoDeviceWithID)
}

type countingWriter struct {
	mutex   sync.Mutex
	samples int
}

func (w *countingWriter) WriteSample(s media.Sample) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.samples += len(s.Data)
	return nil
}

func TestStreamPipelineRendersToWavAndTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mix.wav")
	track := &countingWriter{}
	api := NewStreamAudioIODeviceAPI(StreamOptions{
		Properties:  audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2},
		MaxFrames:   4410,
		WavFile:     path,
		WebRTCTrack: track,
	})
	assert.ErrorIs(t, api.Wait(), errNoPipeline)

	dev, err := api.InitDefaultOutputDevice()
	require.NoError(t, err)
	require.NoError(t, dev.Start(silentRenderer{buf: make([]frame.SurroundFrame, 441)}))
	require.NoError(t, api.Wait())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoder := wav.NewDecoder(f)
	require.True(t, decoder.IsValidFile())
	buf, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 2*4410)

	// 100ms at 8kHz, less the resampler delay
	track.mutex.Lock()
	defer track.mutex.Unlock()
	assert.Greater(t, track.samples, 400)
}

func TestStreamPipelineWithoutSinksDrains(t *testing.T) {
	api := NewStreamAudioIODeviceAPI(StreamOptions{
		Properties: audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2},
		MaxFrames:  1000,
	})
	dev, err := api.InitDefaultOutputDevice()
	require.NoError(t, err)
	require.NoError(t, dev.Start(silentRenderer{buf: make([]frame.SurroundFrame, 100)}))
	require.NoError(t, api.Wait())
	assert.Equal(t, int64(1000), api.Pipeline().Output.FramesRendered())
	assert.Equal(t, float32(1.0), api.Pipeline().Monitor.Gain())
}

func TestStreamPipelineBadWavPath(t *testing.T) {
	api := NewStreamAudioIODeviceAPI(StreamOptions{
		Properties: audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2},
		WavFile:    filepath.Join(t.TempDir(), "missing", "mix.wav"),
	})
	_, err := api.InitDefaultOutputDevice()
	assert.Error(t, err)
	assert.Nil(t, api.Pipeline())
}

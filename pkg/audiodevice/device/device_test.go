package device

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/go-audio/wav"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo44k = audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2}

// Renders buffers of a constant value and counts the calls.
type constantRenderer struct {
	buf   []frame.SurroundFrame
	rate  int
	calls atomic.Int64
}

func newConstantRenderer(frames int, rate int, v frame.Sample) *constantRenderer {
	buf := make([]frame.SurroundFrame, frames)
	for i := range buf {
		buf[i] = frame.SurroundFrame{v, v, v, v}
	}
	return &constantRenderer{buf: buf, rate: rate}
}

func (r *constantRenderer) RenderNextBuffer() []frame.SurroundFrame {
	r.calls.Add(1)
	return r.buf
}

func (r *constantRenderer) FramesPerAudioBuffer() int { return len(r.buf) }
func (r *constantRenderer) SampleRate() int           { return r.rate }

func feed(frames ...frame.PCMFrame) <-chan frame.PCMFrame {
	c := make(chan frame.PCMFrame, len(frames))
	for _, f := range frames {
		c <- f
	}
	close(c)
	return c
}

func collect(t *testing.T, stream <-chan frame.PCMFrame) []frame.PCMFrame {
	t.Helper()
	var out []frame.PCMFrame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-stream:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

// --------------------------------------------------------------------------------

func TestFormatConversionChannels(t *testing.T) {
	cases := []struct {
		name     string
		from, to int
		in       frame.PCMFrame
		want     frame.PCMFrame
	}{
		{"mono to stereo", 1, 2, frame.PCMFrame{0.1, 0.2}, frame.PCMFrame{0.1, 0.1, 0.2, 0.2}},
		{"stereo to mono", 2, 1, frame.PCMFrame{0.2, 0.4, -1, 1}, frame.PCMFrame{0.3, 0}},
		{"surround to stereo", 4, 2, frame.PCMFrame{0.2, 0.4, 0.2, 0.4}, frame.PCMFrame{0.2, 0.4}},
		{"stereo to surround", 2, 4, frame.PCMFrame{0.2, 0.4}, frame.PCMFrame{0.2, 0.4, 0.2, 0.4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewAudioFormatConversionDevice(
				audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: tc.from},
				audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: tc.to},
			)
			require.NoError(t, err)
			d.SetStream(feed(tc.in))

			out := collect(t, d.GetStream())
			require.Len(t, out, 1)
			assert.InDeltaSlice(t, tc.want, out[0], 1e-6)
		})
	}
}

func TestFormatConversionUnsupported(t *testing.T) {
	_, err := NewAudioFormatConversionDevice(
		audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 3},
		stereo44k,
	)
	assert.ErrorIs(t, err, errUnsupportedConversion)
}

func TestFormatConversionResamples(t *testing.T) {
	d, err := NewAudioFormatConversionDevice(stereo44k, PCMUDeviceProperties)
	require.NoError(t, err)
	assert.Equal(t, PCMUDeviceProperties, d.GetDeviceProperties())
	assert.Equal(t, stereo44k, d.GetSourceDeviceProperties())

	in := make([]frame.PCMFrame, 20)
	for i := range in {
		in[i] = make(frame.PCMFrame, 2*441)
	}
	d.SetStream(feed(in...))

	total := 0
	for _, f := range collect(t, d.GetStream()) {
		total += len(f)
	}
	// 20 * 441 frames at 44.1kHz is 200ms, i.e. 1600 mono samples at 8kHz, less filter delay
	assert.Greater(t, total, 1000)
	assert.LessOrEqual(t, total, 1610)
}

func TestAugmentationGainClipAndPeak(t *testing.T) {
	d := NewAudioAugmentationDevice(stereo44k)
	assert.Equal(t, float32(1.0), d.Gain())

	d.SetGain(-1)
	assert.Equal(t, float32(0.0), d.Gain())
	d.SetGain(2)

	d.SetStream(feed(frame.PCMFrame{0.25, -0.75}))
	out := collect(t, d.GetStream())
	require.Len(t, out, 1)
	assert.Equal(t, frame.PCMFrame{0.5, -1.0}, out[0])
	assert.Equal(t, float32(1.0), d.Peak())
}

func TestFanOutCopiesToEverySink(t *testing.T) {
	d := NewFanOutDevice(stereo44k)
	a := d.GetStream()
	b := d.GetStream()
	assert.Equal(t, 2, d.NumSinks())

	source := make(chan frame.PCMFrame)
	d.SetStream(source)

	var wg sync.WaitGroup
	results := make([][]frame.PCMFrame, 2)
	for i, s := range []<-chan frame.PCMFrame{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(t, s)
		}()
	}

	original := frame.PCMFrame{0.1, 0.2}
	source <- original
	close(source)
	wg.Wait()

	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, original, r[0])
	}
	results[0][0][0] = 1
	assert.Equal(t, float32(0.1), results[1][0][0])

	_, ok := <-d.GetStream()
	assert.False(t, ok, "a closed fan out device hands out closed streams")
}

func TestFileOutputWritesWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	d, err := NewFileAudioOutputDevice(path, stereo44k)
	require.NoError(t, err)

	d.SetStream(feed(frame.PCMFrame{0.5, -0.5, 0, 2}))
	require.NoError(t, d.WaitForClose())
	assert.Equal(t, 2, d.FramesWritten())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoder := wav.NewDecoder(f)
	require.True(t, decoder.IsValidFile())
	assert.Equal(t, uint32(44100), decoder.SampleRate)
	assert.Equal(t, uint16(2), decoder.NumChans)

	buf, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{16383, -16383, 0, 32767}, buf.Data)
}

func TestFileOutputRejectsBadProperties(t *testing.T) {
	_, err := NewFileAudioOutputDevice(filepath.Join(t.TempDir(), "out.wav"), audiodevice.DeviceProperties{})
	assert.Error(t, err)
}

func TestDummyOutputRendersUntilStopped(t *testing.T) {
	r := newConstantRenderer(64, 44100, 0)
	d := NewDummyOutputDevice(false)
	require.NoError(t, d.Start(r))

	assert.Eventually(t, func() bool { return r.calls.Load() > 10 }, time.Second, time.Millisecond)
	d.Stop()
	after := r.calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())
	assert.Equal(t, after, d.BuffersRendered())

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Start(r), errDeviceClosed)
}

func TestStreamOutputRendersMaxFrames(t *testing.T) {
	r := newConstantRenderer(100, 44100, 0.25)
	d := NewStreamOutputDevice(stereo44k, StreamOutputOptions{MaxFrames: 250})
	require.NoError(t, d.Start(r))

	out := collect(t, d.GetStream())
	<-d.Done()

	// Whole buffers only, so the last one overshoots
	require.Len(t, out, 3)
	assert.Equal(t, int64(300), d.FramesRendered())
	for _, f := range out {
		require.Len(t, f, 200)
		assert.Equal(t, float32(0.25), f[0])
	}
	assert.ErrorIs(t, d.Start(r), errDeviceClosed)
	assert.NoError(t, d.Close())
}

func TestStreamOutputCloseCascades(t *testing.T) {
	r := newConstantRenderer(32, 44100, 0)
	d := NewStreamOutputDevice(stereo44k, StreamOutputOptions{})
	sink := NewAudioAugmentationDevice(stereo44k)
	sink.SetStream(d.GetStream())

	require.NoError(t, d.Start(r))
	<-sink.GetStream()
	require.NoError(t, d.Close())

	// Drains whatever was in flight, then sees the close
	collect(t, sink.GetStream())
}

type recordingWriter struct {
	mutex   sync.Mutex
	samples []media.Sample
}

func (w *recordingWriter) WriteSample(s media.Sample) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.samples = append(w.samples, s)
	return nil
}

func TestWebRTCSinkEncodesPCMU(t *testing.T) {
	w := &recordingWriter{}
	d := NewWebRTCAudioSinkDevice(w)
	assert.Equal(t, PCMUDeviceProperties, d.GetDeviceProperties())

	d.SetStream(feed(make(frame.PCMFrame, 160)))
	<-d.Done()

	require.Len(t, w.samples, 1)
	assert.Equal(t, 20*time.Millisecond, w.samples[0].Duration)
	require.Len(t, w.samples[0].Data, 160)
	assert.Equal(t, byte(0xFF), w.samples[0].Data[0])
}

// A writer that reports the codec negotiated for it.
type codecWriter struct {
	recordingWriter
	codec webrtc.RTPCodecCapability
}

func (w *codecWriter) Codec() webrtc.RTPCodecCapability { return w.codec }

func TestWebRTCSinkPicksEncoderFromTrack(t *testing.T) {
	pcmu := &codecWriter{codec: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000}}
	d := NewWebRTCAudioSinkDevice(pcmu)
	d.SetStream(feed(make(frame.PCMFrame, 80)))
	<-d.Done()
	require.Len(t, pcmu.samples, 1)
	assert.Len(t, pcmu.samples[0].Data, 80)

	// Nothing can encode opus, frames are dropped
	opus := &codecWriter{codec: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}}
	d = NewWebRTCAudioSinkDevice(opus)
	d.SetStream(feed(make(frame.PCMFrame, 80), make(frame.PCMFrame, 80)))
	<-d.Done()
	assert.Empty(t, opus.samples)

	track, err := NewWebRTCPCMUTrack("audio", "mix")
	require.NoError(t, err)
	assert.IsType(t, encoderdecoder.PCMUEncoderDecoder{}, NewWebRTCAudioSinkDevice(track).encoder)
}

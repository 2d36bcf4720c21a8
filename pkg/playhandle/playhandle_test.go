package playhandle

import (
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainHandle struct{}

func (plainHandle) Render(buf []frame.SampleFrame, frames int) (int, error) { return frames, nil }
func (plainHandle) IsFinished() bool                                      { return false }

func TestCapabilityHelpers(t *testing.T) {
	port := audioport.NewPort("lead", frame.UnitVolumeVector())
	note := NewNoteHandle(60, 100, 44100, port, NoteOptions{FramesAhead: 12})

	assert.Same(t, port, PortOf(note))
	assert.Equal(t, 12, FramesAheadOf(note))
	assert.True(t, CanParallelize(note))

	assert.Nil(t, PortOf(plainHandle{}))
	assert.Equal(t, 0, FramesAheadOf(plainHandle{}))
	assert.False(t, CanParallelize(plainHandle{}))
}

func TestKeyFrequency(t *testing.T) {
	assert.InDelta(t, 440.0, KeyFrequency(69), 1e-9)
	assert.InDelta(t, 880.0, KeyFrequency(81), 1e-9)
	assert.InDelta(t, 261.6256, KeyFrequency(60), 1e-3)
}

func TestNoteHandleReleasesAndFinishes(t *testing.T) {
	n := NewNoteHandle(69, 127, 1000, nil, NoteOptions{Attack: 0.01, Release: 0.02})
	buf := make([]frame.SampleFrame, 64)

	produced, err := n.Render(buf, 64)
	require.NoError(t, err)
	assert.Equal(t, 64, produced)
	assert.False(t, n.IsFinished())

	n.Release()
	n.Release()

	// 20 release frames at 1kHz
	produced, err = n.Render(buf, 64)
	require.NoError(t, err)
	assert.Equal(t, 20, produced)
	assert.True(t, n.IsFinished())
}

func TestNoteHandleDurationAutoReleases(t *testing.T) {
	n := NewNoteHandle(69, 127, 1000, nil, NoteOptions{Duration: 30, Release: 0.01})
	buf := make([]frame.SampleFrame, 64)

	produced, err := n.Render(buf, 64)
	require.NoError(t, err)
	assert.Equal(t, 40, produced)
	assert.True(t, n.IsFinished())
}

func TestNoteHandleStaysInRange(t *testing.T) {
	for _, w := range []Waveform{WaveformSine, WaveformSquare, WaveformSaw, WaveformTriangle} {
		n := NewNoteHandle(81, 127, 44100, nil, NoteOptions{Waveform: w})
		buf := make([]frame.SampleFrame, 512)
		_, err := n.Render(buf, len(buf))
		require.NoError(t, err)
		for _, f := range buf {
			assert.LessOrEqual(t, f[0], float32(1.0))
			assert.GreaterOrEqual(t, f[0], float32(-1.0))
			assert.Equal(t, f[0], f[1])
		}
	}
}

func TestNoteHandleFramesAheadConsumedByFirstRender(t *testing.T) {
	n := NewNoteHandle(69, 127, 44100, nil, NoteOptions{FramesAhead: 100})
	assert.Equal(t, 100, n.FramesAhead())
	_, err := n.Render(make([]frame.SampleFrame, 16), 16)
	require.NoError(t, err)
	assert.Equal(t, 0, n.FramesAhead())
}

func ramp(n int) []frame.SampleFrame {
	data := make([]frame.SampleFrame, n)
	for i := range data {
		v := frame.Sample(i) / 10
		data[i] = frame.SampleFrame{v, -v}
	}
	return data
}

func TestSampleHandlePlaysOnceAndFinishes(t *testing.T) {
	h := NewSampleHandle(ramp(4), 100, 100, nil, SampleOptions{})
	buf := make([]frame.SampleFrame, 8)

	produced, err := h.Render(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, produced)
	assert.True(t, h.IsFinished())
	assert.InDelta(t, 0.3, buf[3][0], 1e-6)
	assert.InDelta(t, -0.3, buf[3][1], 1e-6)
}

func TestSampleHandleGain(t *testing.T) {
	half, silent := float32(0.5), float32(0)
	tests := []struct {
		name string
		gain *float32
		want frame.Sample
	}{
		{"unset plays at unit gain", nil, 0.3},
		{"half", &half, 0.15},
		{"explicit zero is silent", &silent, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSampleHandle(ramp(4), 100, 100, nil, SampleOptions{Gain: tt.gain})
			buf := make([]frame.SampleFrame, 4)
			produced, err := h.Render(buf, 4)
			require.NoError(t, err)
			assert.Equal(t, 4, produced)
			assert.InDelta(t, tt.want, buf[3][0], 1e-6)
		})
	}
}

func TestSampleHandleReverse(t *testing.T) {
	h := NewSampleHandle(ramp(3), 100, 100, nil, SampleOptions{Reverse: true})
	buf := make([]frame.SampleFrame, 8)

	produced, err := h.Render(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, produced)
	assert.InDelta(t, 0.2, buf[0][0], 1e-6)
	assert.InDelta(t, 0.0, buf[2][0], 1e-6)
}

func TestSampleHandleLoopModes(t *testing.T) {
	loop := NewSampleHandle(ramp(3), 100, 100, nil, SampleOptions{Loop: LoopOn})
	buf := make([]frame.SampleFrame, 7)
	produced, err := loop.Render(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, produced)
	assert.False(t, loop.IsFinished())
	assert.InDelta(t, 0.0, buf[3][0], 1e-6)
	assert.InDelta(t, 0.0, buf[6][0], 1e-6)

	pingpong := NewSampleHandle(ramp(3), 100, 100, nil, SampleOptions{Loop: LoopPingPong})
	produced, err = pingpong.Render(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, produced)
	want := []float32{0.0, 0.1, 0.2, 0.1, 0.0, 0.1, 0.2}
	for i, w := range want {
		assert.InDelta(t, w, buf[i][0], 1e-6, "frame %d", i)
	}
}

func TestSampleHandleResamplesAndPitches(t *testing.T) {
	// A sample at half the engine rate advances half a frame per output frame.
	h := NewSampleHandle(ramp(4), 50, 100, nil, SampleOptions{})
	buf := make([]frame.SampleFrame, 3)
	_, err := h.Render(buf, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, buf[1][0], 1e-6)

	h.SampleRateChanged(50)
	assert.InDelta(t, 1.0, h.step, 1e-9)

	pitched := NewSampleHandle(ramp(8), 100, 100, nil, SampleOptions{Pitch: 2})
	_, err = pitched.Render(buf, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, buf[2][0], 1e-6)
}

func TestSampleHandleReleaseFadesOut(t *testing.T) {
	data := make([]frame.SampleFrame, 100)
	for i := range data {
		data[i] = frame.SampleFrame{1, 1}
	}
	h := NewSampleHandle(data, 100, 100, nil, SampleOptions{Loop: LoopOn})
	h.Release()

	buf := make([]frame.SampleFrame, 10)
	produced, err := h.Render(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, produced)
	assert.True(t, h.IsFinished())
	assert.InDelta(t, 1.0, buf[0][0], 1e-6)
	assert.InDelta(t, 0.1, buf[9][0], 1e-6)

	produced, err = h.Render(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, produced)
}

func TestSampleHandleEmptyIsFinished(t *testing.T) {
	h := NewSampleHandle(nil, 100, 100, nil, SampleOptions{})
	assert.True(t, h.IsFinished())
}

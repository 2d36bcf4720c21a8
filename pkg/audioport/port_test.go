package audioport

import (
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantFrames(n int, value frame.Sample) []frame.SampleFrame {
	buf := make([]frame.SampleFrame, n)
	for i := range buf {
		buf[i] = frame.SampleFrame{value, value}
	}
	return buf
}

func TestNewPortHasIdentity(t *testing.T) {
	a := NewPort("drums", frame.UnitVolumeVector())
	b := NewPort("drums", frame.UnitVolumeVector())
	assert.Equal(t, "drums", a.Name())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Nil(t, a.Buffer())
}

func TestMixIsAdditive(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(4, frame.SurroundChannels)

	p.Mix(constantFrames(4, 0.25), 4, 0, p.Volume())
	p.Mix(constantFrames(4, 0.5), 4, 0, p.Volume())

	for _, f := range p.Buffer() {
		assert.Equal(t, frame.SurroundFrame{0.75, 0.75, 0.75, 0.75}, f)
	}
}

func TestMixAppliesVolumeVector(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(2, frame.SurroundChannels)

	src := []frame.SampleFrame{{1.0, 0.5}, {1.0, 0.5}}
	p.Mix(src, 2, 0, frame.VolumeVector{0.5, 1.0, 0.0, 2.0})

	assert.Equal(t, frame.SurroundFrame{0.5, 0.5, 0.0, 1.0}, p.Buffer()[0])
}

func TestMixStereoTopologyLeavesRearSilent(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(2, frame.DefaultChannels)

	p.Mix(constantFrames(2, 0.3), 2, 0, p.Volume())
	assert.Equal(t, frame.SurroundFrame{0.3, 0.3, 0, 0}, p.Buffer()[1])
}

func TestMixFramesAheadSpillsIntoNextPeriod(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(4, frame.SurroundChannels)

	p.Mix(constantFrames(4, 1.0), 4, 2, p.Volume())

	first := p.Buffer()
	assert.Equal(t, frame.SurroundFrame{}, first[0])
	assert.Equal(t, frame.SurroundFrame{}, first[1])
	assert.Equal(t, frame.SurroundFrame{1, 1, 1, 1}, first[2])
	assert.Equal(t, frame.SurroundFrame{1, 1, 1, 1}, first[3])

	p.NextPeriod()
	second := p.Buffer()
	assert.Equal(t, frame.SurroundFrame{1, 1, 1, 1}, second[0])
	assert.Equal(t, frame.SurroundFrame{1, 1, 1, 1}, second[1])
	assert.Equal(t, frame.SurroundFrame{}, second[2])

	p.NextPeriod()
	for _, f := range p.Buffer() {
		assert.Equal(t, frame.SurroundFrame{}, f)
	}
}

func TestMixDropsBeyondSecondPeriod(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(2, frame.SurroundChannels)

	require.NotPanics(t, func() {
		p.Mix(constantFrames(8, 1.0), 8, 1, p.Volume())
	})
}

func TestMixRespectsFrameCount(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(4, frame.SurroundChannels)

	p.Mix(constantFrames(4, 1.0), 2, 0, p.Volume())
	assert.Equal(t, frame.SurroundFrame{1, 1, 1, 1}, p.Buffer()[1])
	assert.Equal(t, frame.SurroundFrame{}, p.Buffer()[2])
}

func TestResizeAndClear(t *testing.T) {
	p := NewPort("bus", frame.UnitVolumeVector())
	p.Resize(4, frame.SurroundChannels)
	p.Mix(constantFrames(4, 1.0), 4, 2, p.Volume())

	p.Clear()
	for _, f := range p.Buffer() {
		assert.Equal(t, frame.SurroundFrame{}, f)
	}

	p.Resize(8, frame.SurroundChannels)
	assert.Equal(t, 8, p.FramesPerBuffer())
	assert.Len(t, p.Buffer(), 8)
}

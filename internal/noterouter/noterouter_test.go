package noterouter

import (
	"errors"
	"sync"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/midiclient"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin/instruments"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

type fakeRegistrar struct {
	mutex   sync.Mutex
	added   []playhandle.PlayHandle
	removed []playhandle.PlayHandle
}

func (f *fakeRegistrar) AddPlayHandle(h playhandle.PlayHandle) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.added = append(f.added, h)
}

func (f *fakeRegistrar) RemovePlayHandle(h playhandle.PlayHandle) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.removed = append(f.removed, h)
}

func (f *fakeRegistrar) SampleRate() int { return 44100 }

// Plays handles that cannot be released.
type gateInstrument struct {
	err error
}

type gateHandle struct {
	key      uint8
	velocity uint8
}

func (*gateHandle) Render(buf []frame.SampleFrame, frames int) (int, error) { return frames, nil }
func (*gateHandle) IsFinished() bool                                        { return false }

var gateDescriptor = &plugin.Descriptor{Name: "gate", Type: plugin.TypeInstrument}

func (g *gateInstrument) Descriptor() *plugin.Descriptor    { return gateDescriptor }
func (g *gateInstrument) SetParameter(string, string) error { return plugin.ErrUnknownParameter }
func (g *gateInstrument) Parameter(string) (string, error)  { return "", plugin.ErrUnknownParameter }

func (g *gateInstrument) PlayNote(n plugin.Note, port *audioport.Port, sampleRate int) (playhandle.PlayHandle, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateHandle{key: n.Key, velocity: n.Velocity}, nil
}

// --------------------------------------------------------------------------------

func TestNoteOnAndOff(t *testing.T) {
	reg := &fakeRegistrar{}
	port := audioport.NewPort("keys", frame.UnitVolumeVector())
	r := New(reg, instruments.NewTone(), port)

	r.HandleMessage(midi.NoteOn(0, 60, 100))
	require.Len(t, reg.added, 1)
	note, ok := reg.added[0].(*playhandle.NoteHandle)
	require.True(t, ok)
	assert.Equal(t, uint8(60), note.Key())
	assert.Equal(t, uint8(100), note.Velocity())
	assert.Same(t, port, note.Port())
	assert.Equal(t, 1, r.ActiveNotes())

	r.HandleMessage(midi.NoteOff(0, 60))
	assert.Equal(t, 0, r.ActiveNotes())
	assert.Empty(t, reg.removed, "releasable notes fade out instead of being removed")

	// The release phase runs out and the note finishes
	buf := make([]frame.SampleFrame, 4096)
	_, err := note.Render(buf, len(buf))
	require.NoError(t, err)
	assert.True(t, note.IsFinished())
}

func TestNoteOnZeroVelocityEndsNote(t *testing.T) {
	reg := &fakeRegistrar{}
	r := New(reg, instruments.NewTone(), nil)

	r.HandleMessage(midi.NoteOn(2, 64, 90))
	r.HandleMessage(midi.NoteOn(2, 64, 0))
	assert.Len(t, reg.added, 1)
	assert.Equal(t, 0, r.ActiveNotes())
}

func TestRetriggerReleasesPreviousNote(t *testing.T) {
	reg := &fakeRegistrar{}
	r := New(reg, &gateInstrument{}, nil)

	require.NoError(t, r.NoteOn(0, 60, 100))
	require.NoError(t, r.NoteOn(0, 60, 80))
	require.NoError(t, r.NoteOn(1, 60, 80))
	require.Len(t, reg.added, 3)
	assert.Equal(t, []playhandle.PlayHandle{reg.added[0]}, reg.removed)
	assert.Equal(t, 2, r.ActiveNotes())

	r.HandleMessage(midi.ControlChange(0, ccAllNotesOff, 0))
	assert.Equal(t, 0, r.ActiveNotes())
	assert.Len(t, reg.removed, 3)
}

func TestFinishedNotesAreForgotten(t *testing.T) {
	reg := &fakeRegistrar{}
	short := &sample.Buffer{Frames: make([]frame.SampleFrame, 4), SampleRate: 44100}
	r := New(reg, instruments.NewSamplerFromBuffer(short), nil)

	require.NoError(t, r.NoteOn(0, 60, 100))
	require.Len(t, reg.added, 1)
	_, err := reg.added[0].Render(make([]frame.SampleFrame, 64), 64)
	require.NoError(t, err)
	require.True(t, reg.added[0].IsFinished())
	assert.Equal(t, 0, r.ActiveNotes())

	require.NoError(t, r.NoteOn(0, 62, 100))
	assert.Len(t, r.active, 1)
	assert.Contains(t, r.active, noteKey{0, 62})
	assert.Equal(t, 1, r.ActiveNotes())
}

func TestInstrumentErrors(t *testing.T) {
	reg := &fakeRegistrar{}
	r := New(reg, nil, nil)
	assert.ErrorIs(t, r.NoteOn(0, 60, 100), errNoInstrument)

	failure := errors.New("no voices left")
	r.SetInstrument(&gateInstrument{err: failure})
	assert.ErrorIs(t, r.NoteOn(0, 60, 100), failure)
	assert.Empty(t, reg.added)

	// Logged and dropped
	r.HandleMessage(midi.NoteOn(0, 61, 100))
	assert.Empty(t, reg.added)
}

func TestRouterAsMIDIHandler(t *testing.T) {
	reg := &fakeRegistrar{}
	r := New(reg, instruments.NewTone(), nil)

	client := midiclient.NewDummyClient()
	require.NoError(t, client.Start(r.HandleMessage))
	client.Inject(midi.NoteOn(0, 69, 127))
	client.Inject(midi.NoteOn(0, 72, 127))
	client.Inject(midi.ProgramChange(0, 5))
	assert.Equal(t, 2, r.ActiveNotes())

	client.Inject(midi.ControlChange(0, ccAllSoundOff, 0))
	assert.Equal(t, 0, r.ActiveNotes())
	require.NoError(t, client.Stop())
}

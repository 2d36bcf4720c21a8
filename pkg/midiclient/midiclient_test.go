package midiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func TestDummyClientLifecycle(t *testing.T) {
	c := NewDummyClient()
	assert.False(t, c.IsRunning())

	var got []midi.Message
	c.Inject(midi.NoteOn(0, 60, 100))
	assert.Empty(t, got, "messages are dropped while stopped")

	require.NoError(t, c.Start(func(msg midi.Message) { got = append(got, msg) }))
	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, c.Start(func(midi.Message) {}), ErrAlreadyRunning)

	c.Inject(midi.NoteOn(0, 60, 100))
	require.Len(t, got, 1)

	var ch, key, vel uint8
	require.True(t, got[0].GetNoteStart(&ch, &key, &vel))
	assert.Equal(t, uint8(60), key)

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	require.NoError(t, c.Start(func(midi.Message) {}), "a stopped client can be restarted")
}

func TestTryMIDIClientsFallsBackToDummy(t *testing.T) {
	// No driver is registered in tests, so no port can be found
	c := TryMIDIClients("no such port")
	assert.IsType(t, &DummyClient{}, c)
	assert.Empty(t, InPortNames())
}

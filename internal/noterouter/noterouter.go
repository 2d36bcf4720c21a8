// Package noterouter turns incoming MIDI note events into play handles on the mixer.
package noterouter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

var errNoInstrument = errors.New("no instrument set")

// Where handles go. Implemented by *mixer.Mixer.
type Registrar interface {
	AddPlayHandle(h playhandle.PlayHandle)
	RemovePlayHandle(h playhandle.PlayHandle)
	SampleRate() int
}

type noteKey struct {
	channel uint8
	key     uint8
}

// Router plays every note-on through an instrument, routed to one port, and ends
// the note on the matching note-off. All MIDI channels are played.
type Router struct {
	logger    *slog.Logger
	registrar Registrar
	port      *audioport.Port

	mutex      sync.Mutex
	instrument plugin.Instrument
	active     map[noteKey]playhandle.PlayHandle
}

// Create a router playing inst into port (nil for the master port).
func New(registrar Registrar, inst plugin.Instrument, port *audioport.Port) *Router {
	return &Router{
		logger:     slog.Default().With("note router uuid", uuid.New()),
		registrar:  registrar,
		port:       port,
		instrument: inst,
		active:     make(map[noteKey]playhandle.PlayHandle),
	}
}

// Switch instruments. Sounding notes are released first.
func (r *Router) SetInstrument(inst plugin.Instrument) {
	r.AllNotesOff()
	r.mutex.Lock()
	r.instrument = inst
	r.mutex.Unlock()
}

// Dispatch a MIDI message. Messages other than notes and the all-notes-off
// controllers are ignored. Suitable as a midiclient.Handler.
func (r *Router) HandleMessage(msg midi.Message) {
	var channel, key, velocity, controller, value uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		if err := r.NoteOn(channel, key, velocity); err != nil {
			r.logger.Warn("could not play note", "channel", channel, "key", key, "err", err)
		}
	case msg.GetNoteEnd(&channel, &key):
		r.NoteOff(channel, key)
	case msg.GetControlChange(&channel, &controller, &value):
		if controller == ccAllNotesOff || controller == ccAllSoundOff {
			r.AllNotesOff()
		}
	}
}

// Start a note. A note already sounding on the same channel and key is released.
func (r *Router) NoteOn(channel uint8, key uint8, velocity uint8) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.instrument == nil {
		return errNoInstrument
	}
	for nk, h := range r.active {
		if h.IsFinished() {
			delete(r.active, nk)
		}
	}

	nk := noteKey{channel, key}
	if h, ok := r.active[nk]; ok {
		r.release(h)
		delete(r.active, nk)
	}

	h, err := r.instrument.PlayNote(
		plugin.Note{Key: key, Velocity: velocity, Channel: channel},
		r.port,
		r.registrar.SampleRate(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", r.instrument.Descriptor().Name, err)
	}
	r.registrar.AddPlayHandle(h)
	r.active[nk] = h
	return nil
}

// End the note on channel and key, if one is sounding.
func (r *Router) NoteOff(channel uint8, key uint8) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	nk := noteKey{channel, key}
	if h, ok := r.active[nk]; ok {
		r.release(h)
		delete(r.active, nk)
	}
}

func (r *Router) AllNotesOff() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for nk, h := range r.active {
		r.release(h)
		delete(r.active, nk)
	}
}

// Number of notes started and not yet ended, nor finished on their own.
func (r *Router) ActiveNotes() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := 0
	for _, h := range r.active {
		if !h.IsFinished() {
			n++
		}
	}
	return n
}

// Handles that can fade out are left to finish on their own, others are removed.
func (r *Router) release(h playhandle.PlayHandle) {
	if rel, ok := h.(playhandle.Releaser); ok {
		rel.Release()
		return
	}
	r.registrar.RemovePlayHandle(h)
}

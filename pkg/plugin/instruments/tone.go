package instruments

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
)

var waveformNames = map[string]playhandle.Waveform{
	"sine":     playhandle.WaveformSine,
	"square":   playhandle.WaveformSquare,
	"saw":      playhandle.WaveformSaw,
	"triangle": playhandle.WaveformTriangle,
}

func waveformName(w playhandle.Waveform) string {
	for name, v := range waveformNames {
		if v == w {
			return name
		}
	}
	return "sine"
}

type toneFeatures struct{}

// One sub-plugin per waveform.
func (toneFeatures) SubPluginKeys(d *plugin.Descriptor) []plugin.Key {
	return []plugin.Key{
		{Descriptor: d, Name: "Sine", User: "sine"},
		{Descriptor: d, Name: "Square", User: "square"},
		{Descriptor: d, Name: "Saw", User: "saw"},
		{Descriptor: d, Name: "Triangle", User: "triangle"},
	}
}

func (toneFeatures) SupportedExtensions() []string {
	return nil
}

var ToneDescriptor = &plugin.Descriptor{
	Name:              "tone",
	PublicName:        "Tone",
	Description:       "Simple oscillator with attack/release envelope",
	Author:            "mixengine",
	Version:           0x0100,
	Type:              plugin.TypeInstrument,
	SubPluginFeatures: toneFeatures{},
	Instantiate: func(data any) (plugin.Plugin, error) {
		t := NewTone()
		if k, ok := data.(plugin.Key); ok && k.User != "" {
			if err := t.SetParameter("waveform", k.User); err != nil {
				return nil, err
			}
		}
		return t, nil
	},
}

// An oscillator instrument playing one NoteHandle per note.
//
// Parameters: waveform (sine, square, saw, triangle), attack and release (seconds).
type Tone struct {
	mutex   sync.Mutex
	options playhandle.NoteOptions
}

func NewTone() *Tone {
	return &Tone{}
}

func (t *Tone) Descriptor() *plugin.Descriptor {
	return ToneDescriptor
}

func (t *Tone) SetParameter(name string, value string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch name {
	case "waveform":
		w, ok := waveformNames[value]
		if !ok {
			return fmt.Errorf("%w: waveform %q", plugin.ErrInvalidParameter, value)
		}
		t.options.Waveform = w
	case "attack", "release":
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds < 0 {
			return fmt.Errorf("%w: %s %q", plugin.ErrInvalidParameter, name, value)
		}
		if name == "attack" {
			t.options.Attack = seconds
		} else {
			t.options.Release = seconds
		}
	default:
		return fmt.Errorf("%w: %s", plugin.ErrUnknownParameter, name)
	}
	return nil
}

func (t *Tone) Parameter(name string) (string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch name {
	case "waveform":
		return waveformName(t.options.Waveform), nil
	case "attack":
		return strconv.FormatFloat(t.options.Attack, 'g', -1, 64), nil
	case "release":
		return strconv.FormatFloat(t.options.Release, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %s", plugin.ErrUnknownParameter, name)
	}
}

func (t *Tone) PlayNote(n plugin.Note, port *audioport.Port, sampleRate int) (playhandle.PlayHandle, error) {
	t.mutex.Lock()
	options := t.options
	t.mutex.Unlock()

	options.Duration = n.Duration
	options.FramesAhead = n.FramesAhead
	return playhandle.NewNoteHandle(n.Key, n.Velocity, sampleRate, port, options), nil
}

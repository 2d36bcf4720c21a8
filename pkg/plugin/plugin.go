// Package plugin defines how instruments and other plugins describe themselves and
// how the engine instantiates them.
//
// The engine never renders a plugin directly. An Instrument produces play handles,
// which the mixer drives like any other source.
package plugin

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
)

var (
	ErrUnknownPlugin    = errors.New("unknown plugin")
	ErrDuplicatePlugin  = errors.New("plugin already registered")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidParameter = errors.New("invalid parameter value")
	ErrNotInstantiable  = errors.New("plugin cannot be instantiated")
)

type Type uint8

const (
	// Plays notes on a channel track
	TypeInstrument Type = iota
	// Processes a track's audio
	TypeEffect
	// Imports a file into a project
	TypeImportFilter
	// Exports a project to a file
	TypeExportFilter
	// Additional tool, e.g. a level meter
	TypeTool
	// Shared code base for several other plugins
	TypeLibrary
	TypeOther

	TypeUndefined Type = 255
)

func (t Type) String() string {
	switch t {
	case TypeInstrument:
		return "Instrument"
	case TypeEffect:
		return "Effect"
	case TypeImportFilter:
		return "ImportFilter"
	case TypeExportFilter:
		return "ExportFilter"
	case TypeTool:
		return "Tool"
	case TypeLibrary:
		return "Library"
	case TypeOther:
		return "Other"
	default:
		return "Undefined"
	}
}

// Identifies one sub-plugin (e.g. a preset or a waveform) of a plugin that offers several.
type Key struct {
	Descriptor *Descriptor `json:"-"`
	Name       string      `json:"name"`
	User       string      `json:"user"`
}

// Encode the key to a string that can be stored in a project and read back with ParseKey.
// The descriptor is not part of the encoding.
func (k Key) Dump() string {
	data, _ := json.Marshal(k)
	return base64.StdEncoding.EncodeToString(data)
}

// Decode a key written by Dump. Invalid data yields an empty key.
func ParseKey(dump string) Key {
	var k Key
	data, err := base64.StdEncoding.DecodeString(dump)
	if err != nil {
		return Key{}
	}
	if err := json.Unmarshal(data, &k); err != nil {
		return Key{}
	}
	return k
}

// Implemented by plugins that consist of several sub-plugins.
type SubPluginFeatures interface {
	SubPluginKeys(d *Descriptor) []Key

	// File extensions the plugin can open, without the dot. May be empty.
	SupportedExtensions() []string
}

// Information about a plugin, registered once per plugin with a Registry.
type Descriptor struct {
	// Unique, used for lookup
	Name string

	PublicName  string
	Description string
	Author      string
	Version     int
	Type        Type

	// Nil for plugins without sub-plugins
	SubPluginFeatures SubPluginFeatures

	// Create an instance. data is plugin specific, e.g. a Key or a file path, and may be nil.
	Instantiate func(data any) (Plugin, error)
}

type Plugin interface {
	Descriptor() *Descriptor

	// Change or query settings without knowing the concrete plugin.
	SetParameter(name string, value string) error
	Parameter(name string) (string, error)
}

// A note to be played by an instrument.
type Note struct {
	Key      uint8
	Velocity uint8
	Channel  uint8

	// Frames into the next buffer at which the note starts
	FramesAhead int

	// Frames after which the note releases itself, 0 to hold until released
	Duration int64
}

type Instrument interface {
	Plugin

	// Create a play handle for n rendering at sampleRate into port (nil for the master port).
	// The caller registers the handle with the mixer.
	PlayNote(n Note, port *audioport.Port, sampleRate int) (playhandle.PlayHandle, error)
}

package instruments

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/playhandle"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/sample"
)

var errNoSample = errors.New("sampler has no sample loaded")

type samplerFeatures struct{}

func (samplerFeatures) SubPluginKeys(d *plugin.Descriptor) []plugin.Key {
	return nil
}

func (samplerFeatures) SupportedExtensions() []string {
	formats := sample.DefaultRegistry.Formats()
	slices.Sort(formats)
	return formats
}

var SamplerDescriptor = &plugin.Descriptor{
	Name:              "sampler",
	PublicName:        "Sampler",
	Description:       "Plays a sample file per note, optionally looped and tuned to the key",
	Author:            "mixengine",
	Version:           0x0100,
	Type:              plugin.TypeInstrument,
	SubPluginFeatures: samplerFeatures{},
	Instantiate: func(data any) (plugin.Plugin, error) {
		s := NewSampler()
		if path, ok := data.(string); ok && path != "" {
			if err := s.SetParameter("file", path); err != nil {
				return nil, err
			}
		}
		return s, nil
	},
}

// Plays one sample per note.
//
// Parameters:
//   - file: path of the sample, in any format of sample.DefaultRegistry
//   - looped, pingpong, reverse: playback modes ("true"/"false")
//   - tuned: transpose the sample by the distance between the note and rootkey
//   - rootkey: MIDI key the sample was recorded at (default 69, A4)
type Sampler struct {
	mutex sync.Mutex

	file     string
	buffer   *sample.Buffer
	looped   bool
	pingpong bool
	reverse  bool
	tuned    bool
	rootKey  uint8
}

func NewSampler() *Sampler {
	return &Sampler{
		tuned:   true,
		rootKey: 69,
	}
}

// Create a sampler playing an already decoded buffer.
func NewSamplerFromBuffer(buf *sample.Buffer) *Sampler {
	s := NewSampler()
	s.buffer = buf
	return s
}

func (s *Sampler) Descriptor() *plugin.Descriptor {
	return SamplerDescriptor
}

func (s *Sampler) SetParameter(name string, value string) error {
	if name == "file" {
		// Decode without holding the lock, notes keep playing the old sample meanwhile
		buf, err := sample.Load(value)
		if err != nil {
			return fmt.Errorf("%w: file %q: %w", plugin.ErrInvalidParameter, value, err)
		}
		s.mutex.Lock()
		s.file = value
		s.buffer = buf
		s.mutex.Unlock()
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch name {
	case "looped", "pingpong", "reverse", "tuned":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s %q", plugin.ErrInvalidParameter, name, value)
		}
		*s.flag(name) = b
	case "rootkey":
		k, err := strconv.ParseUint(value, 10, 8)
		if err != nil || k > 127 {
			return fmt.Errorf("%w: rootkey %q", plugin.ErrInvalidParameter, value)
		}
		s.rootKey = uint8(k)
	default:
		return fmt.Errorf("%w: %s", plugin.ErrUnknownParameter, name)
	}
	return nil
}

func (s *Sampler) Parameter(name string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch name {
	case "file":
		return s.file, nil
	case "looped", "pingpong", "reverse", "tuned":
		return strconv.FormatBool(*s.flag(name)), nil
	case "rootkey":
		return strconv.Itoa(int(s.rootKey)), nil
	default:
		return "", fmt.Errorf("%w: %s", plugin.ErrUnknownParameter, name)
	}
}

func (s *Sampler) flag(name string) *bool {
	switch name {
	case "looped":
		return &s.looped
	case "pingpong":
		return &s.pingpong
	case "reverse":
		return &s.reverse
	default:
		return &s.tuned
	}
}

func (s *Sampler) PlayNote(n plugin.Note, port *audioport.Port, sampleRate int) (playhandle.PlayHandle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.buffer == nil {
		return nil, errNoSample
	}

	gain := float32(min(n.Velocity, 127)) / 127.0
	options := playhandle.SampleOptions{
		Reverse: s.reverse,
		Pitch:   1.0,
		Gain:    &gain,
	}
	switch {
	case s.pingpong:
		options.Loop = playhandle.LoopPingPong
	case s.looped:
		options.Loop = playhandle.LoopOn
	}
	if s.tuned {
		options.Pitch = playhandle.KeyFrequency(n.Key) / playhandle.KeyFrequency(s.rootKey)
	}

	return playhandle.NewSampleHandle(s.buffer.Frames, s.buffer.SampleRate, sampleRate, port, options), nil
}

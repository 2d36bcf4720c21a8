// Package sample loads audio files into stereo frame buffers that play handles can play.
package sample

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

var (
	ErrUnknownFormat = errors.New("unknown sample format")
	ErrEmptySample   = errors.New("sample contains no audio")
)

// A decoded sample: stereo frames at the rate the file was recorded at.
type Buffer struct {
	Frames     []frame.SampleFrame
	SampleRate int
}

func (b *Buffer) Len() int {
	return len(b.Frames)
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Frames)) * time.Second / time.Duration(b.SampleRate)
}

// Decodes a complete file. The go-audio decoders need to seek, so all decoders take a ReadSeeker.
type Decoder func(r io.ReadSeeker) (*Buffer, error)

// Decoders by format key, the lower case file extension without the dot.
type Registry struct {
	mutex   sync.RWMutex
	formats map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{
		formats: make(map[string]Decoder),
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.formats[normalizeFormat(format)] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.formats[normalizeFormat(format)]
	return d, ok
}

// The registered format keys, used by the sampler instrument to advertise its extensions.
func (r *Registry) Formats() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	formats := make([]string, 0, len(r.formats))
	for f := range r.formats {
		formats = append(formats, f)
	}
	return formats
}

func (r *Registry) Decode(rs io.ReadSeeker, format string) (*Buffer, error) {
	d, ok := r.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	buf, err := d(rs)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", format, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptySample
	}
	return buf, nil
}

// Open and decode the file at path, choosing the decoder by file extension.
func (r *Registry) Load(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.Decode(f, filepath.Ext(path))
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(format, "."))
}

// --------------------------------------------------------------------------------

// The registry with every built-in format: wav, aiff/aif, mp3 and ogg.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", decodeWav)
	r.Register("aiff", decodeAiff)
	r.Register("aif", decodeAiff)
	r.Register("mp3", decodeMp3)
	r.Register("ogg", decodeOgg)
	return r
}

func Load(path string) (*Buffer, error) {
	return DefaultRegistry.Load(path)
}

func Decode(r io.ReadSeeker, format string) (*Buffer, error) {
	return DefaultRegistry.Decode(r, format)
}

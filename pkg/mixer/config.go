package mixer

import (
	"fmt"
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

// A quality level selects one of SampleRates.
type QualityLevel int

const (
	QualityDefault QualityLevel = iota
	QualityHigh

	numQualityLevels
)

// Engine sample rate of each quality level.
var SampleRates = [numQualityLevels]int{44100, 88200}

func (q QualityLevel) String() string {
	switch q {
	case QualityDefault:
		return "default"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("QualityLevel(%d)", int(q))
	}
}

func (q QualityLevel) valid() bool {
	return q >= 0 && q < numQualityLevels
}

const (
	MinBufferSize = 32
	MaxBufferSize = 4096
)

type Config struct {
	// Frames per buffer at the default quality level.
	// Higher quality levels scale it with the sample rate, so a buffer always spans the same time.
	FramesPerBuffer int

	HighQuality bool

	MasterGain float32

	// Mix all four surround channels, rather than only the front stereo pair.
	Surround bool

	// Upper bound on play handles rendered concurrently. 1 renders every handle on the
	// device's goroutine.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		FramesPerBuffer: frame.DefaultBufferSize,
		HighQuality:     false,
		MasterGain:      1.0,
		Surround:        true,
		Workers:         1,
	}
}

func (c Config) Validate() error {
	if c.FramesPerBuffer < MinBufferSize || c.FramesPerBuffer > MaxBufferSize {
		return fmt.Errorf("%w: buffer size %d outside [%d, %d]", ErrInvalidConfig, c.FramesPerBuffer, MinBufferSize, MaxBufferSize)
	}
	if c.MasterGain < 0 || math.IsNaN(float64(c.MasterGain)) || math.IsInf(float64(c.MasterGain), 0) {
		return fmt.Errorf("%w: master gain %v", ErrInvalidConfig, c.MasterGain)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

func (c Config) qualityLevel() QualityLevel {
	if c.HighQuality {
		return QualityHigh
	}
	return QualityDefault
}

func (c Config) numChannels() int {
	if c.Surround {
		return frame.SurroundChannels
	}
	return frame.DefaultChannels
}

package mixer

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
)

var (
	ErrInvalidConfig         = errors.New("invalid mixer config")
	ErrInvalidQualityLevel   = errors.New("invalid quality level")
	ErrNoPreviousAudioDevice = errors.New("no previous audio device to restore")
	ErrAlreadyInitialized    = errors.New("mixer already initialized")

	// Same value as audiodevice.ErrNoAudioDevice, so errors.Is matches either.
	ErrNoAudioDevice = audiodevice.ErrNoAudioDevice
)

package audioapi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
)

var (
	errNoDeviceWithID = errors.New("no device with specified ID")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// Intended to be the canonical way to reference the AudioIODevice
	// (e.g. a sound card), such that when telling the API to open a
	// device, it is this value that is used to identify it.
	ID int

	// A human-readable name for the device, if one exists.
	// Not necessary, and not canonical.
	Name string

	// The format (sample rate and channels) the device plays.
	DeviceProperties audiodevice.DeviceProperties
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %d\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.DeviceProperties.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.DeviceProperties.NumChannels)
	return sb.String()
}

// Define an API to interface with output backends.
// Intended to be an abstract way to:
// - Query existing output devices
// - Open one of them as an OutputDevice the mixer can render into
type AudioIODeviceAPI interface {
	// Name of the backend, as used in configuration ("oto", "stream", "dummy").
	Name() string

	OutputDevices() []AudioIODevice
	InitOutputDeviceFromID(AudioIODevice) (audiodevice.OutputDevice, error)
	InitDefaultOutputDevice() (audiodevice.OutputDevice, error)
}

// Open the default output device of the preferred backend, falling back through the
// remaining backends in the order given. The backend that succeeded is returned with
// the device.
//
// If every backend fails, the returned error wraps audiodevice.ErrNoAudioDevice and
// the failure of each backend.
func TryAudioDevices(preferred string, apis ...AudioIODeviceAPI) (audiodevice.OutputDevice, AudioIODeviceAPI, error) {
	ordered := make([]AudioIODeviceAPI, 0, len(apis))
	for _, api := range apis {
		if api.Name() == preferred {
			ordered = append(ordered, api)
		}
	}
	for _, api := range apis {
		if api.Name() != preferred {
			ordered = append(ordered, api)
		}
	}

	var errs []error
	for _, api := range ordered {
		dev, err := api.InitDefaultOutputDevice()
		if err == nil {
			if api.Name() != preferred {
				slog.Warn("preferred audio backend unavailable, falling back",
					"preferred", preferred,
					"backend", api.Name(),
				)
			}
			return dev, api, nil
		}
		slog.Debug("audio backend failed", "backend", api.Name(), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", api.Name(), err))
	}
	return nil, nil, fmt.Errorf("%w: %w", audiodevice.ErrNoAudioDevice, errors.Join(errs...))
}

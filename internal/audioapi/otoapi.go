package audioapi

import (
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice/device"
)

// Plays to the system's default sound card through oto.
// Oto does not enumerate devices, so there is exactly one.
type OtoAudioIODeviceAPI struct {
	properties     audiodevice.DeviceProperties
	bufferDuration time.Duration
}

func NewOtoAudioIODeviceAPI(properties audiodevice.DeviceProperties, bufferDuration time.Duration) OtoAudioIODeviceAPI {
	return OtoAudioIODeviceAPI{
		properties:     properties,
		bufferDuration: bufferDuration,
	}
}

func (api OtoAudioIODeviceAPI) Name() string {
	return "oto"
}

func (api OtoAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:               0,
			Name:             "default",
			DeviceProperties: api.properties,
		},
	}
}

func (api OtoAudioIODeviceAPI) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.OutputDevice, error) {
	if id.ID != 0 {
		return nil, errNoDeviceWithID
	}
	return api.InitDefaultOutputDevice()
}

func (api OtoAudioIODeviceAPI) InitDefaultOutputDevice() (audiodevice.OutputDevice, error) {
	return device.NewOtoOutputDevice(api.properties, api.bufferDuration)
}

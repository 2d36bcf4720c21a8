package audioapi

import (
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice/device"
)

// A dummy API that lists only one output device, which renders and discards the mix.
// It never fails, which makes it the backend of last resort.
type DummyAudioIODeviceAPI struct {
	paced bool
}

// With paced set, the dummy device renders in real time instead of as fast as possible.
func NewDummyAudioIODeviceAPI(paced bool) DummyAudioIODeviceAPI {
	return DummyAudioIODeviceAPI{
		paced: paced,
	}
}

func (api DummyAudioIODeviceAPI) Name() string {
	return "dummy"
}

func (api DummyAudioIODeviceAPI) OutputDevices() []AudioIODevice {
	return []AudioIODevice{
		{
			ID:   0,
			Name: "DummyOutput",
			DeviceProperties: audiodevice.DeviceProperties{
				NumChannels: 2,
			},
		},
	}
}

func (api DummyAudioIODeviceAPI) InitOutputDeviceFromID(id AudioIODevice) (audiodevice.OutputDevice, error) {
	if id.ID != 0 {
		return nil, errNoDeviceWithID
	}
	return device.NewDummyOutputDevice(api.paced), nil
}

func (api DummyAudioIODeviceAPI) InitDefaultOutputDevice() (audiodevice.OutputDevice, error) {
	return device.NewDummyOutputDevice(api.paced), nil
}

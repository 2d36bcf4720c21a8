package networking

import "github.com/pion/webrtc/v4"

var (
	// Codecs the monitor negotiates, by the name used in config files.
	// The mix is only ever encoded as PCMU, so that is all that is offered.
	CodecMap map[string]webrtc.RTPCodecParameters = map[string]webrtc.RTPCodecParameters{
		"PCMU": {
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypePCMU,
				ClockRate: 8000,
			},
			PayloadType: 0,
		},
	}
)

// A webrtc.API whose media engine knows only the codecs in CodecMap.
func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	for _, codec := range CodecMap {
		if err := mediaEngine.RegisterCodec(codec, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, err
		}
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine)), nil
}

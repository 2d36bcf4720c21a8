package device

import (
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/encoderdecoder"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var PCMUDeviceProperties = audiodevice.DeviceProperties{
	SampleRate:  encoderdecoder.PCMUSampleRate,
	NumChannels: encoderdecoder.PCMUNumChannels,
}

// Anything samples can be written to, usually a *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

// Create a local PCMU audio track to add to a peer connection and to pass to
// NewWebRTCAudioSinkDevice.
func NewWebRTCPCMUTrack(id string, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: encoderdecoder.PCMUSampleRate,
			Channels:  encoderdecoder.PCMUNumChannels,
		},
		id,
		streamID,
	)
}

// An AudioSinkDevice that streams the mix to a WebRTC peer as μ-law (PCMU) samples.
//
// The stream must carry 8kHz mono, put an AudioFormatConversionDevice in front of
// this device to get there.
type WebRTCAudioSinkDevice struct {
	logger  *slog.Logger
	track   SampleWriter
	encoder encoderdecoder.EncoderDecoder

	done chan struct{}
}

// Tracks that know their codec, like *webrtc.TrackLocalStaticSample.
type codecTrack interface {
	Codec() webrtc.RTPCodecCapability
}

// Create a sink writing to track. A track reporting a codec with no encoder
// gets the NullEncoderDecoder, so frames are dropped rather than sent mislabelled.
// Writers that do not report a codec are assumed to take PCMU.
func NewWebRTCAudioSinkDevice(track SampleWriter) *WebRTCAudioSinkDevice {
	logger := slog.Default().With(
		"webrtc sink device uuid", uuid.New(),
	)

	encoderType := encoderdecoder.EncoderDecoderTypePCMU
	if t, ok := track.(codecTrack); ok {
		encoderType = encoderdecoder.TypeForMimeType(t.Codec().MimeType)
	}
	encoder, err := encoderdecoder.NewEncoderDecoder(
		encoderType,
		encoderdecoder.PCMUSampleRate,
		encoderdecoder.PCMUNumChannels,
	)
	if err != nil {
		encoder = encoderdecoder.NullEncoderDecoder{}
	}
	if _, ok := encoder.(encoderdecoder.NullEncoderDecoder); ok {
		logger.Warn("no encoder for track codec, audio will be dropped")
	}

	return &WebRTCAudioSinkDevice{
		logger:  logger,
		track:   track,
		encoder: encoder,
		done:    make(chan struct{}),
	}
}

func (d *WebRTCAudioSinkDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		defer close(d.done)
		encodeFailed := false
		for pcmFrame := range sourceStream {
			payload, err := d.encoder.Encode(pcmFrame)
			if err != nil {
				if !encodeFailed {
					d.logger.Error("error encoding audio frame", "err", err)
					encodeFailed = true
				}
				continue
			}

			err = d.track.WriteSample(media.Sample{
				Data:     payload,
				Duration: time.Duration(len(pcmFrame)) * time.Second / encoderdecoder.PCMUSampleRate,
			})
			if err != nil {
				d.logger.Error("error writing audio sample", "err", err)
			}
		}
		d.logger.Debug("source stream closed")
	}()
}

// Closed once the source stream is closed and drained.
func (d *WebRTCAudioSinkDevice) Done() <-chan struct{} {
	return d.done
}

func (d *WebRTCAudioSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return PCMUDeviceProperties
}

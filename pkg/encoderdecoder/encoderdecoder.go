package encoderdecoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

type EncoderDecoderTypeEnum string

var (
	EncoderDecoderTypeNotImplemented EncoderDecoderTypeEnum = "not implemented"
	EncoderDecoderTypeNull           EncoderDecoderTypeEnum = "null"
	EncoderDecoderTypePCMU           EncoderDecoderTypeEnum = "pcmu"
)

var (
	errEncoderDecoderTypeNotImplemented = errors.New("specified encoderdecoder type is not implemented")
	errUnsupportedFormat                = errors.New("encoderdecoder does not support this format")
)

// Implemented encoderdecoders by the mime type a WebRTC track negotiates.
var mimeTypes = map[string]EncoderDecoderTypeEnum{
	"audio/pcmu": EncoderDecoderTypePCMU,
}

// The encoderdecoder for a codec mime type, Null when none is implemented.
func TypeForMimeType(mimeType string) EncoderDecoderTypeEnum {
	if t, ok := mimeTypes[strings.ToLower(mimeType)]; ok {
		return t
	}
	return EncoderDecoderTypeNull
}

// Audio encoder/decoder interface.
// Used to encode raw PCM Frames to a codec payload,
// and decode those payloads back to PCM frames
type EncoderDecoder interface {
	Encode(pcmData frame.PCMFrame) ([]byte, error)
	Decode(encodedData []byte) (frame.PCMFrame, error)
}

// Create a new encoder/decoder for a codec and format.
// If the codec has no implementation, or cannot carry the format,
// a nil Encoder/Decoder and an error is returned.
func NewEncoderDecoder(
	encoderdecoderID EncoderDecoderTypeEnum,
	sampleRate int,
	numChannels int,
) (EncoderDecoder, error) {
	switch encoderdecoderID {
	case EncoderDecoderTypeNull:
		return NullEncoderDecoder{}, nil
	case EncoderDecoderTypePCMU:
		if sampleRate != PCMUSampleRate || numChannels != PCMUNumChannels {
			return nil, fmt.Errorf("%w: pcmu needs %dHz mono, got %dHz with %d channels",
				errUnsupportedFormat, PCMUSampleRate, sampleRate, numChannels)
		}
		return PCMUEncoderDecoder{}, nil
	default:
		return nil, errEncoderDecoderTypeNotImplemented
	}
}

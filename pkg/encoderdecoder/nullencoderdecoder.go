package encoderdecoder

import (
	"errors"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
)

var (
	errNullEncoderDecoderUsed error = errors.New("null encoder decoder used")
)

// An encoder decoder that drops everything and always returns an error.
// Stands in where a codec was not negotiated.
type NullEncoderDecoder struct{}

func (encdec NullEncoderDecoder) Encode(_ frame.PCMFrame) ([]byte, error) {
	return nil, errNullEncoderDecoderUsed
}

func (encdec NullEncoderDecoder) Decode(_ []byte) (frame.PCMFrame, error) {
	return nil, errNullEncoderDecoderUsed
}

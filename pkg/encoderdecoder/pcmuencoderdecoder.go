package encoderdecoder

import "github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"

// G.711 μ-law companding, the payload format of PCMU tracks.

const (
	// PCMU is defined for 8kHz mono only.
	PCMUSampleRate  = 8000
	PCMUNumChannels = 1

	mulawBias = 0x84
	mulawClip = 32635
)

// Encodes one byte per sample. Stateless, so safe for concurrent use.
type PCMUEncoderDecoder struct{}

func (encdec PCMUEncoderDecoder) Encode(pcmData frame.PCMFrame) ([]byte, error) {
	payload := make([]byte, len(pcmData))
	for i, s := range pcmData {
		payload[i] = LinearToMulaw(frame.ToInt16(s))
	}
	return payload, nil
}

func (encdec PCMUEncoderDecoder) Decode(encodedData []byte) (frame.PCMFrame, error) {
	pcmData := make(frame.PCMFrame, len(encodedData))
	for i, b := range encodedData {
		pcmData[i] = float32(MulawToLinear(b)) / 32768
	}
	return pcmData, nil
}

// Encode a 16-bit linear PCM sample as μ-law.
func LinearToMulaw(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		sign = 0x80
		s = -s
	}
	s = min(s, mulawClip) + mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F

	// Bits are transmitted inverted
	return ^(sign | exponent<<4 | mantissa)
}

// Decode a μ-law byte to 16-bit linear PCM.
func MulawToLinear(b byte) int16 {
	u := ^b
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0F)
	s := ((mantissa<<3)+mulawBias)<<exponent - mulawBias
	if u&0x80 != 0 {
		s = -s
	}
	return int16(s)
}

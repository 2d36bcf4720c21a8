package sample

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	errInvalidFile      = errors.New("not a valid file of this format")
	errUnsupportedDepth = errors.New("unsupported bit depth")
)

// Scale integer PCM of the given bit depth to [-1.0, 1.0].
func intToFloat(data []int, bitDepth int, unsigned bool) ([]float32, error) {
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, errUnsupportedDepth
	}
	scale := float32(int64(1) << (bitDepth - 1))
	offset := 0
	if unsigned {
		offset = 1 << (bitDepth - 1)
	}

	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v-offset) / scale
	}
	return out, nil
}

func decodeWav(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errInvalidFile
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	// 8 bit wav data is unsigned
	bitDepth := int(d.BitDepth)
	data, err := intToFloat(buf.Data, bitDepth, bitDepth == 8)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Frames:     frame.FromInterleaved(data, int(d.NumChans), nil),
		SampleRate: int(d.SampleRate),
	}, nil
}

func decodeAiff(r io.ReadSeeker) (*Buffer, error) {
	d := aiff.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errInvalidFile
	}
	d.ReadInfo()
	format := d.Format()
	if format == nil || format.NumChannels <= 0 {
		return nil, errInvalidFile
	}

	var data []int
	chunk := &goaudio.IntBuffer{
		Format: format,
		Data:   make([]int, 4096*format.NumChannels),
	}
	for {
		n, err := d.PCMBuffer(chunk)
		data = append(data, chunk.Data[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 || err != nil {
			break
		}
	}

	samples, err := intToFloat(data, int(d.BitDepth), false)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Frames:     frame.FromInterleaved(samples, format.NumChannels, nil),
		SampleRate: format.SampleRate,
	}, nil
}

// go-mp3 always decodes to 16 bit little endian stereo.
func decodeMp3(r io.ReadSeeker) (*Buffer, error) {
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}

	data := make([]float32, len(raw)/2)
	for i := range data {
		data[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return &Buffer{
		Frames:     frame.FromInterleaved(data, 2, nil),
		SampleRate: d.SampleRate(),
	}, nil
}

func decodeOgg(r io.ReadSeeker) (*Buffer, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Frames:     frame.FromInterleaved(data, format.Channels, nil),
		SampleRate: format.SampleRate,
	}, nil
}

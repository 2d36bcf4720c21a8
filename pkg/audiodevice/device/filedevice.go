package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// --------------------------------------------------------------------------------
// FileAudioOutputDevice

// An AudioSinkDevice that writes the frames of its stream to a 16 bit .WAV file.
// The resulting file is only valid once the stream is closed and WaitForClose returns.
type FileAudioOutputDevice struct {
	logger     *slog.Logger
	path       string
	encoder    *wav.Encoder
	fileHandle *os.File
	properties audiodevice.DeviceProperties

	framesWritten int
	err           error
	done          chan struct{}
}

// Create a new FileAudioOutputDevice that writes incoming PCM frames to a .WAV file at the specified path.
func NewFileAudioOutputDevice(audioFilePath string, properties audiodevice.DeviceProperties) (*FileAudioOutputDevice, error) {
	logger := slog.Default().With(
		"file output device uuid", uuid.New(),
	)
	if properties.SampleRate <= 0 || properties.NumChannels <= 0 {
		return nil, fmt.Errorf("invalid wav properties %+v", properties)
	}

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, properties.SampleRate, wavBitDepth, properties.NumChannels, wavFormatPCM)

	logger.Debug(
		"created audio file",
		"audioFile", audioFilePath,
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
	)

	return &FileAudioOutputDevice{
		logger:     logger,
		path:       audioFilePath,
		encoder:    encoder,
		fileHandle: f,
		properties: properties,
		done:       make(chan struct{}),
	}, nil
}

// Blocks until the stream has closed and the file is finalized.
// Returns the first error met while writing, if any.
func (d *FileAudioOutputDevice) WaitForClose() error {
	<-d.done
	return d.err
}

// The number of frames (not samples) written so far. Only stable after WaitForClose.
func (d *FileAudioOutputDevice) FramesWritten() int {
	return d.framesWritten
}

func (d *FileAudioOutputDevice) Path() string {
	return d.path
}

func (d *FileAudioOutputDevice) close() {
	err := d.encoder.Close()
	if syncErr := d.fileHandle.Sync(); syncErr != nil {
		err = errors.Join(err, syncErr)
	}
	if closeErr := d.fileHandle.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		d.logger.Error("error while finalizing audio file", "err", err)
		d.err = errors.Join(d.err, err)
	}
	close(d.done)
}

// Set the source channel of this audio device, i.e. where data comes from.
//
// When this stream is closed the file is finalized.
func (d *FileAudioOutputDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	go func() {
		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  d.properties.SampleRate,
				NumChannels: d.properties.NumChannels,
			},
			SourceBitDepth: wavBitDepth,
		}
		for pcmFrame := range sourceStream {
			if cap(buf.Data) < len(pcmFrame) {
				buf.Data = make([]int, len(pcmFrame))
			}
			buf.Data = buf.Data[:len(pcmFrame)]
			for i, sample := range pcmFrame {
				buf.Data[i] = int(frame.ToInt16(sample))
			}

			if err := d.encoder.Write(buf); err != nil {
				d.logger.Error("error while writing frame to file", "err", err)
				if d.err == nil {
					d.err = err
				}
				continue
			}
			d.framesWritten += len(pcmFrame) / d.properties.NumChannels
		}
		d.logger.Debug("source stream closed")
		d.close()
	}()
}

func (d *FileAudioOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// Package config loads the engine configuration through viper and sets up logging.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/mixer"
	"github.com/spf13/viper"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	defaults := mixer.DefaultConfig()
	viper.SetDefault("mixer.buffersize", defaults.FramesPerBuffer)
	viper.SetDefault("mixer.highquality", defaults.HighQuality)
	viper.SetDefault("mixer.mastergain", defaults.MasterGain)
	viper.SetDefault("mixer.surround", defaults.Surround)
	viper.SetDefault("mixer.workers", defaults.Workers)

	viper.SetDefault("audio.backend", "oto")
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.bufferduration", "20ms")
	viper.SetDefault("audio.wavfile", "")
	viper.SetDefault("audio.webrtc", false)
	viper.SetDefault("audio.monitorgain", 1.0)

	viper.SetDefault("monitor.address", "")
	viper.SetDefault("monitor.iceservers", []string{})

	viper.SetDefault("midi.port", "")
	viper.SetDefault("midi.instrument", "tone")
}

// Load the config file on top of the defaults.
// A missing file is not an error, the defaults are used; a file that cannot be parsed is.
func LoadConfig(configFilePath string) error {
	setViperDefaults()
	if configFilePath == "" {
		return nil
	}

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found, using defaults", "configFilePath", configFilePath)
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", configFilePath, err)
	}
	slog.Debug("config loaded", "configFilePath", viper.ConfigFileUsed())
	return nil
}

// --------------------------------------------------------------------------------

// The mixer section of the config, validated.
func MixerConfig() (mixer.Config, error) {
	cfg := mixer.Config{
		FramesPerBuffer: viper.GetInt("mixer.buffersize"),
		HighQuality:     viper.GetBool("mixer.highquality"),
		MasterGain:      float32(viper.GetFloat64("mixer.mastergain")),
		Surround:        viper.GetBool("mixer.surround"),
		Workers:         viper.GetInt("mixer.workers"),
	}
	if err := cfg.Validate(); err != nil {
		return mixer.Config{}, err
	}
	return cfg, nil
}

type AudioConfig struct {
	// Preferred backend: "oto", "stream" or "dummy".
	Backend string

	// Format of the output device.
	Properties audiodevice.DeviceProperties

	// Latency of the hardware output buffer.
	BufferDuration time.Duration

	// Record the stream backend to this wav file, if set.
	WavFile string

	// Feed the stream backend into a PCMU WebRTC track.
	WebRTC bool

	MonitorGain float32
}

// The audio section of the config.
func Audio() (AudioConfig, error) {
	cfg := AudioConfig{
		Backend: viper.GetString("audio.backend"),
		Properties: audiodevice.DeviceProperties{
			SampleRate:  viper.GetInt("audio.samplerate"),
			NumChannels: viper.GetInt("audio.channels"),
		},
		BufferDuration: viper.GetDuration("audio.bufferduration"),
		WavFile:        viper.GetString("audio.wavfile"),
		WebRTC:         viper.GetBool("audio.webrtc"),
		MonitorGain:    float32(viper.GetFloat64("audio.monitorgain")),
	}
	if cfg.Properties.SampleRate <= 0 || cfg.Properties.NumChannels <= 0 {
		return AudioConfig{}, fmt.Errorf("invalid audio format %+v", cfg.Properties)
	}
	if cfg.BufferDuration <= 0 {
		return AudioConfig{}, fmt.Errorf("invalid audio buffer duration %q", viper.GetString("audio.bufferduration"))
	}
	return cfg, nil
}

type MonitorConfig struct {
	// Serve remote WebRTC listeners on this address, disabled when empty.
	Address string

	ICEServers []string
}

func Monitor() MonitorConfig {
	return MonitorConfig{
		Address:    viper.GetString("monitor.address"),
		ICEServers: viper.GetStringSlice("monitor.iceservers"),
	}
}

type MIDIConfig struct {
	// Input port name, empty for the first available port.
	Port string

	// Name of the registered instrument plugin notes are played with.
	Instrument string
}

func MIDI() MIDIConfig {
	return MIDIConfig{
		Port:       viper.GetString("midi.port"),
		Instrument: viper.GetString("midi.instrument"),
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/internal/config"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/internal/networking"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/internal/noterouter"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/audioport"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/midiclient"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/mixer"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin"
	"github.com/Honorable-Knights-of-the-Roundtable/mixengine/pkg/plugin/instruments"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

const cpuLoadWarning = 90

type options struct {
	renderPath string
	seconds    float64
	notes      []uint8
	sampleFile string
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	renderPath := flag.String("render", "", "Render offline into this wav file instead of playing, then exit.")
	seconds := flag.Float64("seconds", 5, "Length of an offline render, in seconds.")
	notes := flag.String("notes", "", "Comma separated MIDI keys to start on launch, e.g. 60,64,67.")
	sampleFile := flag.String("sample", "", "Play notes on the sampler with this sample file, instead of the configured instrument.")
	flag.Parse()

	if err := config.LoadConfig(*configFilePath); err != nil {
		slog.Error("error during config read", "err", err)
		os.Exit(1)
	}
	logFilePointer, err := config.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		os.Exit(1)
	}

	keys, err := parseNotes(*notes)
	if err == nil {
		err = run(options{
			renderPath: *renderPath,
			seconds:    *seconds,
			notes:      keys,
			sampleFile: *sampleFile,
		})
	}
	if err != nil {
		slog.Error("mixengine stopped with error", "err", err)
	}
	if logFilePointer != nil {
		logFilePointer.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	mixerConfig, err := config.MixerConfig()
	if err != nil {
		return err
	}
	audioConfig, err := config.Audio()
	if err != nil {
		return err
	}
	midiConfig := config.MIDI()
	monitorConfig := config.Monitor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := mixer.Init(mixerConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := mixer.Shutdown(); err != nil {
			slog.Warn("error during mixer shutdown", "err", err)
		}
	}()

	// --------------------------------------------------------------------------------

	registry := plugin.NewRegistry()
	if err := instruments.RegisterBuiltins(registry); err != nil {
		return err
	}
	var inst plugin.Instrument
	if opts.sampleFile != "" {
		inst, err = registry.InstantiateInstrument(instruments.SamplerDescriptor.Name, opts.sampleFile)
	} else {
		inst, err = registry.InstantiateInstrument(midiConfig.Instrument, nil)
	}
	if err != nil {
		return err
	}

	port := audioport.NewPort(inst.Descriptor().PublicName, frame.UnitVolumeVector())
	m.AddAudioPort(port)
	router := noterouter.New(m, inst, port)

	// Notes are queued before output starts, so an offline render begins with them
	for _, key := range opts.notes {
		if err := router.NoteOn(0, key, 100); err != nil {
			slog.Warn("could not play note", "key", key, "err", err)
		}
	}

	// --------------------------------------------------------------------------------

	streamOptions := audioapi.StreamOptions{
		Properties:  audioConfig.Properties,
		Paced:       true,
		WavFile:     audioConfig.WavFile,
		MonitorGain: audioConfig.MonitorGain,
	}
	if audioConfig.WebRTC || monitorConfig.Address != "" {
		track, err := device.NewWebRTCPCMUTrack("mixengine-audio", "mixengine")
		if err != nil {
			return fmt.Errorf("creating WebRTC track: %w", err)
		}
		streamOptions.WebRTCTrack = track
		slog.Info("streaming mix as PCMU", "trackID", track.ID(), "streamID", track.StreamID())

		if monitorConfig.Address != "" {
			monitor, err := networking.NewMonitorServer(track, webrtc.Configuration{
				ICEServers: []webrtc.ICEServer{{URLs: monitorConfig.ICEServers}},
			})
			if err != nil {
				return fmt.Errorf("creating monitor server: %w", err)
			}
			go func() {
				if err := monitor.ListenAndServe(ctx, monitorConfig.Address); err != nil {
					slog.Error("monitor server stopped", "err", err)
				}
			}()
		}
	}

	preferred := audioConfig.Backend
	offline := opts.renderPath != ""
	if offline {
		preferred = "stream"
		streamOptions.Paced = false
		streamOptions.WavFile = opts.renderPath
		streamOptions.MaxFrames = int64(opts.seconds * float64(m.SampleRate()))
	}
	streamAPI := audioapi.NewStreamAudioIODeviceAPI(streamOptions)

	apis := []audioapi.AudioIODeviceAPI{streamAPI}
	if !offline {
		apis = append(apis,
			audioapi.NewOtoAudioIODeviceAPI(audioConfig.Properties, audioConfig.BufferDuration),
			audioapi.NewDummyAudioIODeviceAPI(true),
		)
	}

	dev, api, err := audioapi.TryAudioDevices(preferred, apis...)
	if err != nil {
		return err
	}
	if err := m.SetAudioDevice(dev, mixerConfig.HighQuality); err != nil {
		return err
	}
	slog.Info("audio output running",
		"backend", api.Name(),
		"device", m.AudioDevName(),
		"sampleRate", m.SampleRate(),
		"framesPerBuffer", m.FramesPerAudioBuffer(),
	)

	if !offline {
		client := midiclient.TryMIDIClients(midiConfig.Port)
		m.SetMIDIClient(client)
		if err := client.Start(router.HandleMessage); err != nil {
			slog.Warn("could not start MIDI client", "client", client.Name(), "err", err)
		}
		slog.Info("MIDI input", "client", m.MIDIClientName())
	}

	// --------------------------------------------------------------------------------

	if offline {
		err := streamAPI.Wait()
		slog.Info("offline render finished", "file", opts.renderPath, "seconds", opts.seconds)
		return err
	}

	watchCPULoad(ctx, m)
	router.AllNotesOff()
	slog.Info("shutting down")
	return nil
}

// Log the mixer's cpu load until ctx is done, warning when it nears the deadline.
func watchCPULoad(ctx context.Context, m *mixer.Mixer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load := m.CPULoad()
			if load >= cpuLoadWarning {
				slog.Warn("mixer close to missing its deadline, consider a larger buffer size", "cpuLoad", load)
			} else {
				slog.Debug("mixer load", "cpuLoad", load, "noRunningNotes", m.HaveNoRunningNotes())
			}
		}
	}
}

func parseNotes(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}
	var keys []uint8
	for _, field := range strings.Split(s, ",") {
		k, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
		if err != nil || k > 127 {
			return nil, errors.Join(fmt.Errorf("invalid MIDI key %q", field), err)
		}
		keys = append(keys, uint8(k))
	}
	return keys, nil
}

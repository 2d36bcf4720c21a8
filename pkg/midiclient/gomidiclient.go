package midiclient

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Names of the input ports of the registered gomidi driver.
// Empty unless a driver (e.g. rtmididrv) has been imported by the program.
func InPortNames() []string {
	ports := midi.GetInPorts()
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return names
}

// A Client reading from a hardware (or virtual) input port through gomidi.
type GoMIDIClient struct {
	logger *slog.Logger
	port   drivers.In

	mutex   sync.Mutex
	stopFn  func()
	running bool
}

func NewGoMIDIClient(portName string) (*GoMIDIClient, error) {
	var port drivers.In
	if portName == "" {
		ports := midi.GetInPorts()
		if len(ports) == 0 {
			return nil, ErrNoMIDIPort
		}
		port = ports[0]
	} else {
		var err error
		port, err = midi.FindInPort(portName)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrNoMIDIPort, portName, err)
		}
	}

	return &GoMIDIClient{
		logger: slog.Default().With(
			"midi client uuid", uuid.New(),
			"port", port.String(),
		),
		port: port,
	}, nil
}

func (c *GoMIDIClient) Name() string {
	return c.port.String()
}

func (c *GoMIDIClient) Start(handler Handler) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	if err := c.port.Open(); err != nil {
		c.logger.Error("failed to open MIDI port", "err", err)
		return err
	}
	stop, err := midi.ListenTo(c.port, func(msg midi.Message, timestampms int32) {
		handler(msg)
	}, midi.HandleError(func(listenErr error) {
		// Must not stop the listener from within its own goroutine
		c.logger.Warn("MIDI listener error, device likely disconnected", "err", listenErr)
		go func() {
			if err := c.Stop(); err != nil {
				c.logger.Error("failed to stop MIDI client", "err", err)
			}
		}()
	}))
	if err != nil {
		c.logger.Error("failed to start MIDI listener", "err", err)
		_ = c.port.Close()
		return err
	}

	c.stopFn = stop
	c.running = true
	c.logger.Info("MIDI input connected")
	return nil
}

func (c *GoMIDIClient) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running {
		return nil
	}
	c.stopFn()
	c.stopFn = nil
	c.running = false
	c.logger.Info("MIDI input closed")
	return c.port.Close()
}

func (c *GoMIDIClient) IsRunning() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.running
}

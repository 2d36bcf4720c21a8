// Package midiclient delivers MIDI input to the engine.
//
// A Client has its own lifecycle, independent of the audio device: it may be started,
// stopped and swapped while the mixer keeps rendering.
package midiclient

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
)

var (
	ErrNoMIDIPort     = errors.New("no MIDI input port available")
	ErrAlreadyRunning = errors.New("MIDI client already running")
)

// Called for every incoming message, from the client's own goroutine.
type Handler func(msg midi.Message)

type Client interface {
	// Human-readable name, for display.
	Name() string

	// Start delivering messages to handler.
	Start(handler Handler) error

	// Stop delivering messages. A stopped client may be started again.
	Stop() error

	IsRunning() bool
}

// Open the named input port, or the first one when portName is empty.
// Falls back to a DummyClient if no port can be opened, so the engine always has a client.
func TryMIDIClients(portName string) Client {
	c, err := NewGoMIDIClient(portName)
	if err == nil {
		return c
	}
	slog.Warn("no MIDI input available, using dummy client", "port", portName, "err", err)
	return NewDummyClient()
}

// --------------------------------------------------------------------------------

// A client without any hardware. Messages are only delivered through Inject.
type DummyClient struct {
	logger *slog.Logger

	mutex   sync.Mutex
	handler Handler
}

func NewDummyClient() *DummyClient {
	return &DummyClient{
		logger: slog.Default().With("dummy midi client uuid", uuid.New()),
	}
}

func (c *DummyClient) Name() string {
	return "Dummy (no MIDI support)"
}

func (c *DummyClient) Start(handler Handler) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.handler != nil {
		return ErrAlreadyRunning
	}
	c.handler = handler
	c.logger.Debug("started")
	return nil
}

func (c *DummyClient) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handler = nil
	return nil
}

func (c *DummyClient) IsRunning() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.handler != nil
}

// Deliver msg as if it had arrived from a port. Dropped while the client is stopped.
func (c *DummyClient) Inject(msg midi.Message) {
	c.mutex.Lock()
	handler := c.handler
	c.mutex.Unlock()
	if handler != nil {
		handler(msg)
	}
}

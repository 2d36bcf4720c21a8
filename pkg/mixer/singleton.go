package mixer

import (
	"fmt"
	"sync"
)

// There is one mixer per process, driving the one output stream.
// It is created by Init, or lazily with DefaultConfig by the first Instance call,
// and torn down by Shutdown.
var (
	instanceMutex sync.Mutex
	instance      *Mixer
)

// Create the process-wide mixer from cfg.
// Fails with ErrAlreadyInitialized if a mixer exists and Shutdown has not been called since.
func Init(cfg Config) (*Mixer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	instanceMutex.Lock()
	defer instanceMutex.Unlock()
	if instance != nil {
		return nil, fmt.Errorf("%w: call Shutdown first", ErrAlreadyInitialized)
	}
	instance = newMixer(cfg)
	return instance, nil
}

// The process-wide mixer, created with DefaultConfig if Init was never called.
func Instance() *Mixer {
	instanceMutex.Lock()
	defer instanceMutex.Unlock()
	if instance == nil {
		instance = newMixer(DefaultConfig())
	}
	return instance
}

// Close the process-wide mixer's devices and MIDI client and forget it.
// A later Init or Instance creates a fresh mixer. Safe to call without a mixer.
func Shutdown() error {
	instanceMutex.Lock()
	m := instance
	instance = nil
	instanceMutex.Unlock()

	if m == nil {
		return nil
	}
	return m.close()
}

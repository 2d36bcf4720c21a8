//go:build rtmidi

package main

// Hardware MIDI input needs a driver, which requires cgo.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

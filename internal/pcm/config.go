package pcm

import (
	"fmt"
)

// Config holds the stream parameters of a playback device. Samples are always S16_LE.
type Config struct {
	Channels    uint32
	Rate        uint32
	PeriodSize  uint32 // In frames
	PeriodCount uint32
}

// DefaultConfig is used for zero period fields.
var DefaultConfig = Config{
	Channels:    2,
	Rate:        48000,
	PeriodSize:  1024,
	PeriodCount: 4,
}

// Path returns the device node of a hardware playback device.
func Path(card, device uint) string {
	return fmt.Sprintf("/dev/snd/pcmC%dD%dp", card, device)
}

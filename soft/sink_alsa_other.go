//go:build !linux

package soft

import (
	"errors"

	"github.com/gen2brain/audren/internal/pcm"
)

var errNoALSA = errors.New("ALSA output is only available on linux")

// ALSASink writes the final mix to an ALSA hardware playback device.
type ALSASink struct{}

// NewALSASink opens a hardware playback device, given as "hw:C,D", for S16_LE output.
func NewALSASink(name string, rate, channels, periodSize, periodCount uint32) (*ALSASink, error) {
	return nil, errNoALSA
}

// WriteFrames implements Sink.
func (s *ALSASink) WriteFrames(samples []int16, channels int) error {
	return errNoALSA
}

// Xruns returns the number of device underruns.
func (s *ALSASink) Xruns() int {
	return 0
}

// Close drains and closes the device.
func (s *ALSASink) Close() error {
	return nil
}

// ListDevices lists the hardware playback devices NewALSASink can open.
func ListDevices() ([]pcm.Card, error) {
	return nil, errNoALSA
}

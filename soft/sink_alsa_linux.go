package soft

import (
	"fmt"

	"github.com/gen2brain/audren/internal/pcm"
)

// ALSASink writes the final mix to an ALSA hardware playback device.
type ALSASink struct {
	pcm *pcm.PCM
}

// NewALSASink opens a hardware playback device, given as "hw:C,D", for S16_LE output.
// A zero period size or count uses the device defaults.
func NewALSASink(name string, rate, channels, periodSize, periodCount uint32) (*ALSASink, error) {
	card, device, err := pcm.ParseName(name)
	if err != nil {
		return nil, err
	}

	p, err := pcm.Open(card, device, pcm.Config{
		Channels:    channels,
		Rate:        rate,
		PeriodSize:  periodSize,
		PeriodCount: periodCount,
	})
	if err != nil {
		return nil, err
	}

	if cfg := p.Config(); cfg.Rate != rate || cfg.Channels != channels {
		_ = p.Close()

		return nil, fmt.Errorf("device %s does not support %d Hz with %d channels", name, rate, channels)
	}

	return &ALSASink{pcm: p}, nil
}

// WriteFrames implements Sink.
func (s *ALSASink) WriteFrames(samples []int16, channels int) error {
	if channels != int(s.pcm.Config().Channels) {
		return fmt.Errorf("device has %d channels, got %d", s.pcm.Config().Channels, channels)
	}

	_, err := s.pcm.Write(samples)

	return err
}

// Xruns returns the number of device underruns.
func (s *ALSASink) Xruns() int {
	return s.pcm.Xruns()
}

// Close drains and closes the device.
func (s *ALSASink) Close() error {
	if !s.pcm.IsReady() {
		return nil
	}

	_ = s.pcm.Drain()

	return s.pcm.Close()
}

// ListDevices lists the hardware playback devices NewALSASink can open.
func ListDevices() ([]pcm.Card, error) {
	return pcm.EnumerateCards()
}
